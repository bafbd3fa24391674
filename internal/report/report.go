// Package report defines the immutable summary produced when a unit of
// work ends: captured queries grouped by forcing origin, per-shape
// fetched/consumed/over-fetched field sets, duplicate statements, and any
// warnings collected along the way.
package report

import (
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/model"
)

// Report is the final aggregation for one unit of work. It is a value
// snapshot: nothing mutates it after EndUnitOfWork returns it.
type Report struct {
	UnitID     string          `json:"unit_id"`
	ContextID  string          `json:"context_id"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    time.Time       `json:"ended_at"`
	WallTime   time.Duration   `json:"wall_time"`
	DBTime     time.Duration   `json:"db_time"`
	QueryCount int             `json:"query_count"`
	GroupCount int             `json:"group_count"`
	Groups     []GroupReport   `json:"groups,omitempty"`
	Duplicates []Duplicate     `json:"duplicates,omitempty"`
	Warnings   []model.Warning `json:"warnings,omitempty"`
}

// GroupReport summarizes one query group: the primary query, the dependent
// queries forced while resolving its records' relations, and field usage
// per record shape.
type GroupReport struct {
	Seq        int          `json:"seq"`
	OriginSeq  int          `json:"origin_seq"`
	Origin     model.Origin `json:"origin"`
	Primary    Query        `json:"primary"`
	Dependents []Query      `json:"dependents,omitempty"`
	Shapes     []ShapeUsage `json:"shapes,omitempty"`
}

// Query is the reported view of one captured query.
type Query struct {
	ID        string        `json:"id"`
	Statement string        `json:"statement"`
	Params    []any         `json:"params,omitempty"`
	Origin    model.Origin  `json:"origin"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Shape     string        `json:"shape,omitempty"`
	Rows      int           `json:"rows"`
}

// ShapeUsage compares what a group fetched for one record shape against
// what the host actually consumed.
type ShapeUsage struct {
	Shape       string    `json:"shape"`
	Records     int       `json:"records"`
	Rows        int       `json:"rows"`
	Fetched     FieldList `json:"fetched"`
	Consumed    FieldList `json:"consumed"`
	OverFetched FieldList `json:"over_fetched"`
}

// Duplicate is one statement executed more than once in the unit, compared
// after whitespace normalization. A high count on one statement is the
// classic N+1 signal.
type Duplicate struct {
	Statement string `json:"statement"`
	Count     int    `json:"count"`
}

// FieldList is the serialized form of a field set. Unknown sets render as
// "unknown", never as an empty list.
type FieldList struct {
	Known  bool     `json:"known"`
	Fields []string `json:"fields,omitempty"`
}

// FieldsOf converts a model.FieldSet into its reported form.
func FieldsOf(fs model.FieldSet) FieldList {
	return FieldList{Known: fs.Known, Fields: fs.Names()}
}

// String renders the list for text output.
func (fl FieldList) String() string {
	if !fl.Known {
		return "unknown"
	}
	if len(fl.Fields) == 0 {
		return "(none)"
	}
	out := fl.Fields[0]
	for _, f := range fl.Fields[1:] {
		out += ", " + f
	}
	return out
}

// OverFetchCount sums the known over-fetched field counts across all
// groups and shapes. Unknown sets contribute nothing.
func (r *Report) OverFetchCount() int {
	n := 0
	for _, g := range r.Groups {
		for _, s := range g.Shapes {
			if s.OverFetched.Known {
				n += len(s.OverFetched.Fields)
			}
		}
	}
	return n
}

// DependentCount sums dependent queries across all groups.
func (r *Report) DependentCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Dependents)
	}
	return n
}
