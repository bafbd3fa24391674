// Package uow accumulates the query activity of one unit of work: captured
// events, their grouping into primary and dependent queries, per-record
// field accesses, and duplicate-statement counts. The accumulator evolves
// while the unit is live and freezes into a report when it ends.
package uow

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/model"
	"github.com/krishiv1545/django-orm-cost/internal/report"
)

// Options tune capture fidelity per unit.
type Options struct {
	// CaptureParams retains query parameters on events.
	CaptureParams bool
	// MaxStatementLen bounds stored statement text. <= 0 means unlimited.
	MaxStatementLen int
}

// Result carries what the integration layer learned when a query finished:
// the logical record shape, the declared output columns (nil when the
// driver could not report them), and the row count.
type Result struct {
	Shape   string
	Columns []string
	Rows    int
}

// Token identifies one in-flight captured query. The zero Token is invalid
// and every operation on it is a no-op.
type Token struct {
	u  *UnitOfWork
	ev *model.QueryEvent
	g  *model.QueryGroup
}

// Valid reports whether the token refers to a captured query.
func (t Token) Valid() bool { return t.ev != nil }

// QueryID returns the captured event's ID, or "".
func (t Token) QueryID() string {
	if t.ev == nil {
		return ""
	}
	return t.ev.ID
}

// GroupSeq returns the owning group's sequence number, or 0.
func (t Token) GroupSeq() int {
	if t.g == nil {
		return 0
	}
	return t.g.Seq
}

// StartedAt returns when the captured query began.
func (t Token) StartedAt() time.Time {
	if t.ev == nil {
		return time.Time{}
	}
	return t.ev.StartedAt
}

// Group returns the owning group.
func (t Token) Group() *model.QueryGroup { return t.g }

// Unit returns the owning unit of work.
func (t Token) Unit() *UnitOfWork { return t.u }

// binding ties one fetched record to the group that fetched it and the
// fields the host consumed from it.
type binding struct {
	group  *model.QueryGroup
	access *model.FieldAccessRecord
}

// UnitOfWork is the evolving accumulator for one bounded execution context.
// All methods are safe for concurrent use; after the unit ends every
// mutation becomes a cheap no-op so stale references cannot corrupt the
// report.
type UnitOfWork struct {
	id        string
	contextID string
	startedAt time.Time
	opts      Options

	ended atomic.Bool

	mu        sync.Mutex
	groups    []*model.QueryGroup
	scopes    []*model.QueryGroup
	originSeq map[string]int
	bindings  []*binding
	records   map[model.RecordIdentity]*binding
	stmts     map[string]int
	stmtOrder []string
	dbTime    time.Duration
	warnings  []model.Warning
}

// New creates a unit of work that began at startedAt.
func New(id, contextID string, startedAt time.Time, opts Options) *UnitOfWork {
	return &UnitOfWork{
		id:        id,
		contextID: contextID,
		startedAt: startedAt,
		opts:      opts,
		originSeq: make(map[string]int),
		records:   make(map[model.RecordIdentity]*binding),
		stmts:     make(map[string]int),
	}
}

// ID returns the unit ID.
func (u *UnitOfWork) ID() string { return u.id }

// ContextID returns the execution context this unit is registered under.
func (u *UnitOfWork) ContextID() string { return u.contextID }

// StartedAt returns when the unit began.
func (u *UnitOfWork) StartedAt() time.Time { return u.startedAt }

// Ended reports whether the unit has been finalized or abandoned.
func (u *UnitOfWork) Ended() bool { return u.ended.Load() }

// AddWarning attaches a non-fatal observation to the eventual report.
func (u *UnitOfWork) AddWarning(kind model.WarningKind, msg string) {
	if u.ended.Load() {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return
	}
	u.warnings = append(u.warnings, model.Warning{Kind: kind, Message: msg})
}

// StartQuery captures a query at its forcing moment. The caller resolves
// the origin before calling: the stack that forced the query no longer
// exists once the query completes. Inside a relation scope the event joins
// the owning group as a dependent; otherwise it starts a new group keyed by
// origin plus a per-origin ordinal, so each loop iteration gets its own
// group.
func (u *UnitOfWork) StartQuery(statement string, params []any, o model.Origin, at time.Time) Token {
	if u.ended.Load() {
		return Token{}
	}

	ev := &model.QueryEvent{
		ID:        NewQueryID(),
		Statement: model.TruncateStatement(statement, u.opts.MaxStatementLen),
		Origin:    o,
		StartedAt: at,
	}
	if u.opts.CaptureParams && len(params) > 0 {
		ev.Params = append([]any(nil), params...)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return Token{}
	}

	norm := model.NormalizeStatement(statement)
	if norm != "" {
		if u.stmts[norm] == 0 {
			u.stmtOrder = append(u.stmtOrder, norm)
		}
		u.stmts[norm]++
	}

	if g := u.currentScope(); g != nil {
		g.Dependents = append(g.Dependents, ev)
		return Token{u: u, ev: ev, g: g}
	}

	key := o.Key()
	u.originSeq[key]++
	g := &model.QueryGroup{
		Seq:       len(u.groups) + 1,
		OriginSeq: u.originSeq[key],
		Origin:    o,
		Primary:   ev,
	}
	u.groups = append(u.groups, g)
	return Token{u: u, ev: ev, g: g}
}

// EndQuery completes a captured query with its duration and result
// metadata. Declared columns come from the integration, never from parsing
// statement text. Returns false when the token is invalid or the unit
// already ended.
func (u *UnitOfWork) EndQuery(t Token, res Result, d time.Duration) bool {
	if !t.Valid() || u.ended.Load() {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}

	t.ev.Duration = d
	t.ev.Shape = res.Shape
	if res.Columns != nil {
		t.ev.Columns = append([]string(nil), res.Columns...)
	}
	t.ev.Rows = res.Rows
	u.dbTime += d
	return true
}

// Bind registers a fetched record against the group that fetched it.
// Rebinding the same identity to the same group is idempotent; a re-fetch
// by another group starts a fresh access record attributed to the new
// group while the old one keeps what was already consumed.
func (u *UnitOfWork) Bind(t Token, id model.RecordIdentity) bool {
	if !t.Valid() || u.ended.Load() || id.IsZero() {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}
	return u.bindLocked(t.g, id)
}

// BindTo registers a fetched record directly against a group, for callers
// holding a group capability instead of a query token.
func (u *UnitOfWork) BindTo(g *model.QueryGroup, id model.RecordIdentity) bool {
	if g == nil || id.IsZero() || u.ended.Load() {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}
	return u.bindLocked(g, id)
}

func (u *UnitOfWork) bindLocked(g *model.QueryGroup, id model.RecordIdentity) bool {
	if b, ok := u.records[id]; ok && b.group == g {
		return true
	}
	b := &binding{group: g, access: model.NewFieldAccessRecord(id)}
	u.bindings = append(u.bindings, b)
	u.records[id] = b
	return true
}

// FieldRead marks one field of a bound record as consumed. Reads are
// idempotent for the consumed set. Returns false when the record is
// unknown or the unit ended; the caller decides whether that deserves a
// warning.
func (u *UnitOfWork) FieldRead(id model.RecordIdentity, field string) bool {
	if u.ended.Load() || field == "" {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}

	b, ok := u.records[id]
	if !ok {
		return false
	}
	b.access.Read(field)
	return true
}

// ObserveField is the capability-path field read: it binds the identity to
// the observer's group when the record was never explicitly bound, then
// marks the field consumed.
func (u *UnitOfWork) ObserveField(g *model.QueryGroup, id model.RecordIdentity, field string) bool {
	if u.ended.Load() || g == nil || id.IsZero() || field == "" {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}

	b, ok := u.records[id]
	if !ok {
		u.bindLocked(g, id)
		b = u.records[id]
	}
	b.access.Read(field)
	return true
}

// RelationStart opens a relation scope owned by the group that fetched the
// given record. Queries started inside the scope become dependents of that
// group. An unknown owner falls back to the most recent group; with no
// groups at all the scope opens unowned and inner queries stay primaries.
// Scopes nest: the innermost wins.
func (u *UnitOfWork) RelationStart(owner model.RecordIdentity) bool {
	if u.ended.Load() {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}

	if b, ok := u.records[owner]; ok {
		u.scopes = append(u.scopes, b.group)
		return true
	}

	if n := len(u.groups); n > 0 {
		u.warnings = append(u.warnings, model.Warning{
			Kind:    model.WarnScope,
			Message: "relation scope opened for unknown record " + owner.String() + "; attributing to most recent group",
		})
		u.scopes = append(u.scopes, u.groups[n-1])
		return true
	}

	u.warnings = append(u.warnings, model.Warning{
		Kind:    model.WarnScope,
		Message: "relation scope opened before any query group existed",
	})
	u.scopes = append(u.scopes, nil)
	return false
}

// RelationEnd closes the innermost relation scope. Returns false on an
// empty stack, which is recorded as a scope violation.
func (u *UnitOfWork) RelationEnd() bool {
	if u.ended.Load() {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended.Load() {
		return false
	}

	if len(u.scopes) == 0 {
		u.warnings = append(u.warnings, model.Warning{
			Kind:    model.WarnScope,
			Message: "relation scope closed without a matching open",
		})
		return false
	}
	u.scopes = u.scopes[:len(u.scopes)-1]
	return true
}

// GroupBySeq returns the group with the given 1-based sequence, or nil.
func (u *UnitOfWork) GroupBySeq(seq int) *model.QueryGroup {
	u.mu.Lock()
	defer u.mu.Unlock()
	if seq < 1 || seq > len(u.groups) {
		return nil
	}
	return u.groups[seq-1]
}

func (u *UnitOfWork) currentScope() *model.QueryGroup {
	if len(u.scopes) == 0 {
		return nil
	}
	return u.scopes[len(u.scopes)-1]
}

// Abandon marks the unit ended without producing a report. Used when the
// host context dies before EndUnitOfWork.
func (u *UnitOfWork) Abandon() {
	u.ended.Store(true)
}

// Finalize freezes the unit and builds its report. Only the first call
// produces a report; later calls return nil. A unit that captured nothing
// still yields a valid report.
func (u *UnitOfWork) Finalize(endedAt time.Time) *report.Report {
	if !u.ended.CompareAndSwap(false, true) {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	r := &report.Report{
		UnitID:    u.id,
		ContextID: u.contextID,
		StartedAt: u.startedAt,
		EndedAt:   endedAt,
		WallTime:  endedAt.Sub(u.startedAt),
		DBTime:    u.dbTime,
		Warnings:  append([]model.Warning(nil), u.warnings...),
	}

	for _, g := range u.groups {
		gr := report.GroupReport{
			Seq:       g.Seq,
			OriginSeq: g.OriginSeq,
			Origin:    g.Origin,
			Primary:   queryView(g.Primary),
		}
		for _, d := range g.Dependents {
			gr.Dependents = append(gr.Dependents, queryView(d))
		}
		gr.Shapes = u.shapeUsageLocked(g)
		r.Groups = append(r.Groups, gr)
		r.QueryCount += 1 + len(g.Dependents)
	}
	r.GroupCount = len(r.Groups)

	for _, norm := range u.stmtOrder {
		if n := u.stmts[norm]; n > 1 {
			r.Duplicates = append(r.Duplicates, report.Duplicate{Statement: norm, Count: n})
		}
	}

	return r
}

// shapeUsageLocked aggregates fetched vs consumed per record shape for one
// group. Fetched comes from declared query columns; a query with unknown
// columns makes the whole shape's fetched set unknown, and the over-fetched
// set inherits that unknownness rather than pretending it is empty.
func (u *UnitOfWork) shapeUsageLocked(g *model.QueryGroup) []report.ShapeUsage {
	type agg struct {
		rows     int
		records  int
		seenQ    bool
		fetched  model.FieldSet
		consumed model.FieldSet
	}
	shapes := make(map[string]*agg)

	get := func(shape string) *agg {
		a, ok := shapes[shape]
		if !ok {
			a = &agg{consumed: model.KnownFields(nil)}
			shapes[shape] = a
		}
		return a
	}

	for _, ev := range g.Events() {
		if ev.Shape == "" {
			continue
		}
		a := get(ev.Shape)
		a.rows += ev.Rows
		var cols model.FieldSet
		if ev.Columns != nil {
			cols = model.KnownFields(ev.Columns)
		} else {
			cols = model.UnknownFields()
		}
		if !a.seenQ {
			a.fetched = cols
			a.seenQ = true
		} else {
			a.fetched = a.fetched.Union(cols)
		}
	}

	for _, b := range u.bindings {
		if b.group != g || b.access.Identity.Shape == "" {
			continue
		}
		a := get(b.access.Identity.Shape)
		a.records++
		a.consumed = a.consumed.Union(b.access.Fields)
	}

	names := make([]string, 0, len(shapes))
	for s := range shapes {
		names = append(names, s)
	}
	sort.Strings(names)

	out := make([]report.ShapeUsage, 0, len(names))
	for _, s := range names {
		a := shapes[s]
		if !a.seenQ {
			// Records bound for a shape no captured query declared.
			a.fetched = model.UnknownFields()
		}
		out = append(out, report.ShapeUsage{
			Shape:       s,
			Records:     a.records,
			Rows:        a.rows,
			Fetched:     report.FieldsOf(a.fetched),
			Consumed:    report.FieldsOf(a.consumed),
			OverFetched: report.FieldsOf(a.fetched.Diff(a.consumed)),
		})
	}
	return out
}

func queryView(ev *model.QueryEvent) report.Query {
	if ev == nil {
		return report.Query{}
	}
	return report.Query{
		ID:        ev.ID,
		Statement: ev.Statement,
		Params:    ev.Params,
		Origin:    ev.Origin,
		StartedAt: ev.StartedAt,
		Duration:  ev.Duration,
		Shape:     ev.Shape,
		Rows:      ev.Rows,
	}
}
