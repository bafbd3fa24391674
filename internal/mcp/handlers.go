package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/krishiv1545/django-orm-cost/internal/report"
	"github.com/krishiv1545/django-orm-cost/internal/trail"
)

// AnalyzeInput defines parameters for the ormcost_analyze tool.
type AnalyzeInput struct {
	Trail string `json:"trail" jsonschema:"path to a trail file (.jsonl)"`
}

// AnalyzeOutput contains the full report or the analysis failure.
type AnalyzeOutput struct {
	Report *report.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// SummaryInput defines parameters for the ormcost_summary tool.
type SummaryInput struct {
	Trail string `json:"trail" jsonschema:"path to a trail file (.jsonl)"`
}

// SummaryOutput is the compact view of one analyzed trail.
type SummaryOutput struct {
	UnitID      string          `json:"unit_id"`
	ContextID   string          `json:"context_id"`
	Queries     int             `json:"queries"`
	Groups      int             `json:"groups"`
	Dependents  int             `json:"dependents"`
	DBTimeMS    float64         `json:"db_time_ms"`
	WallTimeMS  float64         `json:"wall_time_ms"`
	OverFetched []OverFetchItem `json:"over_fetched,omitempty"`
	Duplicates  []DuplicateItem `json:"duplicates,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// OverFetchItem names the fields one origin fetched but never consumed.
type OverFetchItem struct {
	Origin string   `json:"origin"`
	Shape  string   `json:"shape"`
	Fields []string `json:"fields"`
}

// DuplicateItem is one statement executed more than once.
type DuplicateItem struct {
	Statement string `json:"statement"`
	Count     int    `json:"count"`
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcpsdk.CallToolRequest, input AnalyzeInput) (*mcpsdk.CallToolResult, AnalyzeOutput, error) {
	if input.Trail == "" {
		return nil, AnalyzeOutput{}, fmt.Errorf("trail path is required")
	}

	r, err := trail.Replay(input.Trail)
	if err != nil {
		out := AnalyzeOutput{Error: err.Error()}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	return nil, AnalyzeOutput{Report: r}, nil
}

func (s *Server) handleSummary(ctx context.Context, req *mcpsdk.CallToolRequest, input SummaryInput) (*mcpsdk.CallToolResult, SummaryOutput, error) {
	if input.Trail == "" {
		return nil, SummaryOutput{}, fmt.Errorf("trail path is required")
	}

	r, err := trail.Replay(input.Trail)
	if err != nil {
		out := SummaryOutput{Error: err.Error()}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	return nil, summarize(r), nil
}

// summarize reduces a report to the findings an agent acts on.
func summarize(r *report.Report) SummaryOutput {
	out := SummaryOutput{
		UnitID:     r.UnitID,
		ContextID:  r.ContextID,
		Queries:    r.QueryCount,
		Groups:     r.GroupCount,
		Dependents: r.DependentCount(),
		DBTimeMS:   float64(r.DBTime.Microseconds()) / 1000,
		WallTimeMS: float64(r.WallTime.Microseconds()) / 1000,
	}

	for _, g := range r.Groups {
		for _, sh := range g.Shapes {
			if !sh.OverFetched.Known || len(sh.OverFetched.Fields) == 0 {
				continue
			}
			out.OverFetched = append(out.OverFetched, OverFetchItem{
				Origin: g.Origin.String(),
				Shape:  sh.Shape,
				Fields: sh.OverFetched.Fields,
			})
		}
	}

	for _, d := range r.Duplicates {
		out.Duplicates = append(out.Duplicates, DuplicateItem{
			Statement: d.Statement,
			Count:     d.Count,
		})
	}

	for _, w := range r.Warnings {
		out.Warnings = append(out.Warnings, fmt.Sprintf("[%s] %s", w.Kind, w.Message))
	}

	return out
}
