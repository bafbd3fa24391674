package ormcost

import (
	"fmt"
	"strings"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/model"
	"github.com/krishiv1545/django-orm-cost/internal/report"
)

// Report is the final aggregation for one unit of work. It is a value
// snapshot: nothing mutates it after EndUnitOfWork returns it.
type Report struct {
	UnitID     string        `json:"unit_id"`
	ContextID  string        `json:"context_id"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	WallTime   time.Duration `json:"wall_time"`
	DBTime     time.Duration `json:"db_time"`
	QueryCount int           `json:"query_count"`
	GroupCount int           `json:"group_count"`
	Groups     []Group       `json:"groups,omitempty"`
	Duplicates []Duplicate   `json:"duplicates,omitempty"`
	Warnings   []Warning     `json:"warnings,omitempty"`
}

// Group is one query group: a primary query, the dependents forced while
// resolving its records' relations, and field usage per record shape.
type Group struct {
	Seq        int          `json:"seq"`
	OriginSeq  int          `json:"origin_seq"`
	Origin     Origin       `json:"origin"`
	Primary    Query        `json:"primary"`
	Dependents []Query      `json:"dependents,omitempty"`
	Shapes     []ShapeUsage `json:"shapes,omitempty"`
}

// Query is the reported view of one captured query.
type Query struct {
	ID        string        `json:"id"`
	Statement string        `json:"statement"`
	Params    []any         `json:"params,omitempty"`
	Origin    Origin        `json:"origin"`
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

// FieldList is a field set with an explicit known flag. Unknown sets render
// as "unknown", never as an empty list.
type FieldList struct {
	Known  bool     `json:"known"`
	Fields []string `json:"fields,omitempty"`
}

// String renders the list for text output.
func (fl FieldList) String() string {
	if !fl.Known {
		return "unknown"
	}
	if len(fl.Fields) == 0 {
		return "(none)"
	}
	return strings.Join(fl.Fields, ", ")
}

// Duplicate is one statement executed more than once in the unit, compared
// after whitespace normalization.
type Duplicate struct {
	Statement string `json:"statement"`
	Count     int    `json:"count"`
}

// Warning flags degraded capture or scope violations observed in the unit.
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Origin is the application code location that forced a query.
type Origin struct {
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Function   string `json:"function,omitempty"`
	Attributed bool   `json:"attributed"`
}

// String renders "file:line", or "unattributed" when resolution found no
// application frame.
func (o Origin) String() string {
	if !o.Attributed {
		return "unattributed"
	}
	return fmt.Sprintf("%s:%d", o.File, o.Line)
}

// OverFetchCount sums the known over-fetched field counts across all groups
// and shapes. Unknown sets contribute nothing.
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

// toReport maps an internal report to its SDK form.
func toReport(r *report.Report) *Report {
	if r == nil {
		return nil
	}
	out := &Report{
		UnitID:     r.UnitID,
		ContextID:  r.ContextID,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		WallTime:   r.WallTime,
		DBTime:     r.DBTime,
		QueryCount: r.QueryCount,
		GroupCount: r.GroupCount,
	}
	for _, g := range r.Groups {
		out.Groups = append(out.Groups, toGroup(g))
	}
	for _, d := range r.Duplicates {
		out.Duplicates = append(out.Duplicates, Duplicate{Statement: d.Statement, Count: d.Count})
	}
	for _, w := range r.Warnings {
		out.Warnings = append(out.Warnings, Warning{Kind: string(w.Kind), Message: w.Message})
	}
	return out
}

func toGroup(g report.GroupReport) Group {
	out := Group{
		Seq:       g.Seq,
		OriginSeq: g.OriginSeq,
		Origin:    toOrigin(g.Origin),
		Primary:   toQuery(g.Primary),
	}
	for _, d := range g.Dependents {
		out.Dependents = append(out.Dependents, toQuery(d))
	}
	for _, s := range g.Shapes {
		out.Shapes = append(out.Shapes, ShapeUsage{
			Shape:       s.Shape,
			Records:     s.Records,
			Rows:        s.Rows,
			Fetched:     FieldList(s.Fetched),
			Consumed:    FieldList(s.Consumed),
			OverFetched: FieldList(s.OverFetched),
		})
	}
	return out
}

func toQuery(q report.Query) Query {
	return Query{
		ID:        q.ID,
		Statement: q.Statement,
		Params:    q.Params,
		Origin:    toOrigin(q.Origin),
		StartedAt: q.StartedAt,
		Duration:  q.Duration,
		Shape:     q.Shape,
		Rows:      q.Rows,
	}
}

func toOrigin(o model.Origin) Origin {
	return Origin{File: o.File, Line: o.Line, Function: o.Function, Attributed: o.Attributed}
}
