// Package trail records the hook stream of a unit of work as JSONL and
// reconstructs reports from recorded trails offline. Trail files are
// disposable analysis inputs for `ormcost analyze`, the watch daemon, and
// the MCP server.
package trail

import (
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/model"
)

// TimestampFormat is the layout used in trail event timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Kind tags one recorded hook call.
type Kind string

const (
	KindBegin         Kind = "begin"
	KindQueryStart    Kind = "query_start"
	KindQueryEnd      Kind = "query_end"
	KindBind          Kind = "bind"
	KindFieldRead     Kind = "field_read"
	KindRelationStart Kind = "relation_start"
	KindRelationEnd   Kind = "relation_end"
	KindWarning       Kind = "warning"
	KindEnd           Kind = "end"
)

// Event is one line in a trail file. All fields are flat so json.Marshal
// yields a stable field order.
type Event struct {
	Timestamp  string        `json:"ts"`
	Kind       Kind          `json:"kind"`
	UnitID     string        `json:"unit_id"`
	ContextID  string        `json:"context_id,omitempty"`
	QueryID    string        `json:"query_id,omitempty"`
	GroupSeq   int           `json:"group_seq,omitempty"`
	Statement  string        `json:"statement,omitempty"`
	Params     []any         `json:"params,omitempty"`
	Origin     *model.Origin `json:"origin,omitempty"`
	Shape      string        `json:"shape,omitempty"`
	Columns    []string      `json:"columns,omitempty"`
	Rows       int           `json:"rows,omitempty"`
	DurationUS int64         `json:"duration_us,omitempty"`
	Key        string        `json:"key,omitempty"`
	Field      string        `json:"field,omitempty"`
	WarnKind   string        `json:"warn_kind,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// Stamp returns ev with the timestamp set to now if it was empty.
func (ev Event) Stamp() Event {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	return ev
}

// parseTS parses a trail timestamp; malformed input yields the zero time.
func parseTS(ts string) time.Time {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
