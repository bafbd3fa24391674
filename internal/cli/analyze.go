package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krishiv1545/django-orm-cost/internal/report"
	"github.com/krishiv1545/django-orm-cost/internal/trail"
)

var (
	analyzeFormat string
	analyzeOutput string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "text", "Output format (text|json)")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Directory for rendered reports (default stdout)")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <trail.jsonl>...",
	Short: "Replay recorded trails and render cost reports",
	Long: "Reads query trail files, reconstructs each unit of work, and renders\n" +
		"the attribution report: query groups by origin, fetched vs consumed\n" +
		"fields, duplicate statements, and warnings.",
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		rep, err := trail.Replay(path)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", path, err)
		}

		rendered, ext, err := renderReport(rep, analyzeFormat)
		if err != nil {
			return err
		}

		if analyzeOutput == "" {
			fmt.Print(rendered)
			continue
		}

		if err := os.MkdirAll(analyzeOutput, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), ".jsonl") + ext
		out := filepath.Join(analyzeOutput, name)
		if err := os.WriteFile(out, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("wrote %s\n", out)
	}
	return nil
}

// renderReport renders r in the requested format and returns the content
// plus the matching file extension.
func renderReport(r *report.Report, format string) (string, string, error) {
	switch format {
	case "json":
		out, err := report.FormatJSON(r)
		if err != nil {
			return "", "", err
		}
		return out + "\n", ".report.json", nil
	case "text":
		return report.FormatText(r), ".report.txt", nil
	default:
		return "", "", fmt.Errorf("unknown format %q: use text or json", format)
	}
}
