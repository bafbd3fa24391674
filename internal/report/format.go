package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatText renders a Report as a human-readable timeline grouped by
// forcing origin.
func FormatText(r *Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Unit: %s | context %s | %s\n",
		r.UnitID, r.ContextID, r.StartedAt.UTC().Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Queries: %d in %d groups | db %s / wall %s\n",
		r.QueryCount, r.GroupCount, formatDuration(r.DBTime), formatDuration(r.WallTime)))
	b.WriteString(separator + "\n")

	if len(r.Groups) == 0 {
		b.WriteString("No queries captured.\n")
	}

	for _, g := range r.Groups {
		origin := g.Origin.String()
		if g.OriginSeq > 1 {
			origin = fmt.Sprintf("%s (#%d)", origin, g.OriginSeq)
		}
		b.WriteString(fmt.Sprintf("[%d] %s\n", g.Seq, origin))
		writeQuery(&b, "  primary  ", g.Primary)
		for _, d := range g.Dependents {
			writeQuery(&b, "  dependent", d)
		}
		for _, s := range g.Shapes {
			b.WriteString(fmt.Sprintf("  shape %-12s records=%d fetched: %s\n",
				s.Shape, s.Records, s.Fetched))
			b.WriteString(fmt.Sprintf("  %-18s consumed: %s\n", "", s.Consumed))
			b.WriteString(fmt.Sprintf("  %-18s over-fetched: %s\n", "", s.OverFetched))
		}
	}

	if len(r.Duplicates) > 0 {
		b.WriteString(separator + "\n")
		b.WriteString("Duplicate statements:\n")
		for _, d := range r.Duplicates {
			b.WriteString(fmt.Sprintf("  %dx %s\n", d.Count, truncate(d.Statement, 80)))
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString(separator + "\n")
		for _, w := range r.Warnings {
			b.WriteString(fmt.Sprintf("warning [%s]: %s\n", w.Kind, w.Message))
		}
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(r))
	return b.String()
}

// FormatJSON renders a Report as indented JSON.
func FormatJSON(r *Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

func writeQuery(b *strings.Builder, label string, q Query) {
	stmt := truncate(q.Statement, 64)
	b.WriteString(fmt.Sprintf("%s %-8s %-64s rows=%d\n",
		label, formatDuration(q.Duration), stmt, q.Rows))
}

func formatSummary(r *Report) string {
	parts := []string{}
	if n := r.DependentCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d dependent", n))
	}
	if n := r.OverFetchCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d over-fetched fields", n))
	}
	if n := len(r.Duplicates); n > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicated statements", n))
	}
	if n := len(r.Warnings); n > 0 {
		parts = append(parts, fmt.Sprintf("%d warnings", n))
	}
	if len(parts) == 0 {
		parts = append(parts, "clean")
	}
	return fmt.Sprintf("Summary: %s\n", strings.Join(parts, ", "))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
