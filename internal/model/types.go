package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Origin is the host source location whose evaluation forced a query.
type Origin struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Function   string `json:"function,omitempty"`
	Attributed bool   `json:"attributed"`
}

// Unattributed is the marker origin used when every stack frame was internal.
func Unattributed() Origin {
	return Origin{Attributed: false}
}

// String renders the origin as file:line, or "unattributed".
func (o Origin) String() string {
	if !o.Attributed {
		return "unattributed"
	}
	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// Key returns the grouping key for the origin. Distinct unattributed
// origins share one key so they collapse into per-ordinal groups.
func (o Origin) Key() string {
	return o.String()
}

// QueryEvent is one captured query inside a unit of work.
type QueryEvent struct {
	ID        string        `json:"id"`
	Statement string        `json:"statement"`
	Params    []any         `json:"params,omitempty"`
	Origin    Origin        `json:"origin"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Shape     string        `json:"shape,omitempty"`
	Columns   []string      `json:"columns,omitempty"`
	Rows      int           `json:"rows"`
}

// QueryGroup is a primary query plus the dependent queries issued while
// resolving its records' relations.
type QueryGroup struct {
	Seq        int           `json:"seq"`
	OriginSeq  int           `json:"origin_seq"`
	Origin     Origin        `json:"origin"`
	Primary    *QueryEvent   `json:"primary"`
	Dependents []*QueryEvent `json:"dependents,omitempty"`
}

// Events returns the primary followed by the dependents.
func (g *QueryGroup) Events() []*QueryEvent {
	out := make([]*QueryEvent, 0, 1+len(g.Dependents))
	if g.Primary != nil {
		out = append(out, g.Primary)
	}
	return append(out, g.Dependents...)
}

// RecordIdentity names one fetched record: a logical shape (table, model)
// and a key within that shape.
type RecordIdentity struct {
	Shape string `json:"shape"`
	Key   string `json:"key"`
}

// String renders the identity as shape:key.
func (r RecordIdentity) String() string {
	return r.Shape + ":" + r.Key
}

// IsZero reports whether the identity carries no information.
func (r RecordIdentity) IsZero() bool {
	return r.Shape == "" && r.Key == ""
}

// FieldSet is a set of column names that may be unknown as a whole.
// An unknown set is reported as "unknown", never as an empty set.
type FieldSet struct {
	Known  bool
	Fields map[string]struct{}
}

// KnownFields builds a known FieldSet from the given names.
func KnownFields(names []string) FieldSet {
	fs := FieldSet{Known: true, Fields: make(map[string]struct{}, len(names))}
	for _, n := range names {
		fs.Fields[n] = struct{}{}
	}
	return fs
}

// UnknownFields returns the unknown FieldSet.
func UnknownFields() FieldSet {
	return FieldSet{}
}

// Add inserts a name. Adding to an unknown set makes it known.
func (fs *FieldSet) Add(name string) {
	if fs.Fields == nil {
		fs.Fields = make(map[string]struct{})
	}
	fs.Known = true
	fs.Fields[name] = struct{}{}
}

// Union merges other into a copy of fs. Unknown absorbs: if either side is
// unknown the result is unknown.
func (fs FieldSet) Union(other FieldSet) FieldSet {
	if !fs.Known || !other.Known {
		return UnknownFields()
	}
	out := FieldSet{Known: true, Fields: make(map[string]struct{}, len(fs.Fields)+len(other.Fields))}
	for f := range fs.Fields {
		out.Fields[f] = struct{}{}
	}
	for f := range other.Fields {
		out.Fields[f] = struct{}{}
	}
	return out
}

// Diff returns fs minus other. If fs is unknown the result is unknown; an
// unknown subtrahend removes nothing it can prove, so the result is also
// unknown.
func (fs FieldSet) Diff(other FieldSet) FieldSet {
	if !fs.Known || !other.Known {
		return UnknownFields()
	}
	out := FieldSet{Known: true, Fields: make(map[string]struct{})}
	for f := range fs.Fields {
		if _, ok := other.Fields[f]; !ok {
			out.Fields[f] = struct{}{}
		}
	}
	return out
}

// Contains reports membership. Unknown sets contain nothing provably.
func (fs FieldSet) Contains(name string) bool {
	if !fs.Known {
		return false
	}
	_, ok := fs.Fields[name]
	return ok
}

// Len returns the number of known fields.
func (fs FieldSet) Len() int {
	return len(fs.Fields)
}

// Names returns the sorted field names, or nil for an unknown set.
func (fs FieldSet) Names() []string {
	if !fs.Known {
		return nil
	}
	out := make([]string, 0, len(fs.Fields))
	for f := range fs.Fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// FieldAccessRecord tracks which fields of one record the host consumed.
// Set semantics: repeated reads of the same field do not grow the set.
// Counts are retained separately for diagnostics.
type FieldAccessRecord struct {
	Identity RecordIdentity `json:"identity"`
	Fields   FieldSet       `json:"-"`
	Counts   map[string]int `json:"counts,omitempty"`
}

// NewFieldAccessRecord creates an empty access record for the identity.
func NewFieldAccessRecord(id RecordIdentity) *FieldAccessRecord {
	return &FieldAccessRecord{
		Identity: id,
		Fields:   FieldSet{Known: true, Fields: make(map[string]struct{})},
		Counts:   make(map[string]int),
	}
}

// Read marks one field as consumed. Idempotent for the set, counted for
// diagnostics.
func (r *FieldAccessRecord) Read(field string) {
	r.Fields.Add(field)
	r.Counts[field]++
}

// WarningKind classifies report warnings.
type WarningKind string

const (
	// WarnScope marks hook usage outside the expected lifecycle.
	WarnScope WarningKind = "scope_violation"
	// WarnDegraded marks capture that continued with reduced fidelity.
	WarnDegraded WarningKind = "degraded_capture"
)

// Warning is a non-fatal observation carried on the report. Violations are
// reported, never raised into the host.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// NormalizeStatement collapses runs of whitespace so textually identical
// statements compare equal for duplicate detection.
func NormalizeStatement(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateStatement bounds stored statement text. Zero or negative limits
// mean unlimited.
func TruncateStatement(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
