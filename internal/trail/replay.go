package trail

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/model"
	"github.com/krishiv1545/django-orm-cost/internal/report"
	"github.com/krishiv1545/django-orm-cost/internal/uow"
)

// Replay reconstructs a unit of work from a recorded trail and returns the
// report the live run would have produced. Recorded origins and durations
// are used as-is: the forcing stacks are long gone.
func Replay(path string) (*report.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trail: %w", err)
	}
	defer f.Close()

	var (
		u       *uow.UnitOfWork
		toks    = map[string]uow.Token{}
		endedAt time.Time
		lastTS  time.Time
		sawEnd  bool
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		if ts := parseTS(ev.Timestamp); !ts.IsZero() {
			lastTS = ts
		}

		if ev.Kind == KindBegin {
			if u != nil {
				continue // one unit per trail; ignore spurious begins
			}
			u = uow.New(ev.UnitID, ev.ContextID, parseTS(ev.Timestamp), uow.Options{CaptureParams: true})
			continue
		}
		if u == nil || ev.UnitID != u.ID() {
			continue
		}

		switch ev.Kind {
		case KindQueryStart:
			o := model.Unattributed()
			if ev.Origin != nil {
				o = *ev.Origin
			}
			toks[ev.QueryID] = u.StartQuery(ev.Statement, ev.Params, o, parseTS(ev.Timestamp))
		case KindQueryEnd:
			u.EndQuery(toks[ev.QueryID], uow.Result{
				Shape:   ev.Shape,
				Columns: ev.Columns,
				Rows:    ev.Rows,
			}, time.Duration(ev.DurationUS)*time.Microsecond)
		case KindBind:
			id := model.RecordIdentity{Shape: ev.Shape, Key: ev.Key}
			if ev.QueryID != "" {
				u.Bind(toks[ev.QueryID], id)
			} else if ev.GroupSeq > 0 {
				u.BindTo(u.GroupBySeq(ev.GroupSeq), id)
			}
		case KindFieldRead:
			id := model.RecordIdentity{Shape: ev.Shape, Key: ev.Key}
			if ev.GroupSeq > 0 {
				u.ObserveField(u.GroupBySeq(ev.GroupSeq), id, ev.Field)
			} else {
				u.FieldRead(id, ev.Field)
			}
		case KindRelationStart:
			u.RelationStart(model.RecordIdentity{Shape: ev.Shape, Key: ev.Key})
		case KindRelationEnd:
			u.RelationEnd()
		case KindWarning:
			u.AddWarning(model.WarningKind(ev.WarnKind), ev.Message)
		case KindEnd:
			endedAt = parseTS(ev.Timestamp)
			sawEnd = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trail: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("trail %s has no begin event", path)
	}

	if !sawEnd {
		u.AddWarning(model.WarnDegraded, "trail ended without an end event; unit reconstructed up to the last recorded line")
		endedAt = lastTS
	}

	r := u.Finalize(endedAt)
	if r == nil {
		return nil, fmt.Errorf("trail %s replayed into an already-ended unit", path)
	}
	return r, nil
}
