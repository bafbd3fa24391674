package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/report"
)

// AnalyzeFunc turns one trail file into a report. The daemon is wired with
// trail.Replay in production; tests inject fakes.
type AnalyzeFunc func(path string) (*report.Report, error)

// FormatJSON and FormatText select the outbox rendering.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ProcessorConfig holds runtime configuration for trail processing.
type ProcessorConfig struct {
	Dirs    DirConfig
	Format  string
	Analyze AnalyzeFunc
}

// Processor handles the trail lifecycle: inbox, processing, outbox.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor creates a processor with the given configuration.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	return &Processor{cfg: cfg}
}

// Process handles a single trail file through its full lifecycle:
// move to processing, analyze, write the rendered report to the outbox.
// Failed trails are kept under state/failed with an error marker in the
// outbox so a consumer sees every input accounted for.
func (p *Processor) Process(_ context.Context, trailPath string) error {
	// Reject symlinks before reading. A symlinked inbox entry would let
	// the daemon read arbitrary paths on the filesystem.
	fi, err := os.Lstat(trailPath)
	if err != nil {
		return fmt.Errorf("stat trail file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("rejected symlink: %s", filepath.Base(trailPath))
	}

	name := filepath.Base(trailPath)
	processingPath := filepath.Join(p.cfg.Dirs.ProcessingDir(), name)
	if err := moveFile(trailPath, processingPath); err != nil {
		return fmt.Errorf("move to processing: %w", err)
	}

	r, err := p.cfg.Analyze(processingPath)
	if err != nil {
		if moveErr := moveFile(processingPath, filepath.Join(p.cfg.Dirs.FailedDir(), name)); moveErr != nil {
			_ = os.Remove(processingPath)
		}
		return p.writeFailure(name, err.Error())
	}

	rendered, outName, err := p.render(name, r)
	if err != nil {
		_ = moveFile(processingPath, filepath.Join(p.cfg.Dirs.FailedDir(), name))
		return p.writeFailure(name, err.Error())
	}

	if err := p.writeOutbox(outName, rendered); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	// The trail is consumed; the report is the durable artifact.
	_ = os.Remove(processingPath)
	return nil
}

// render produces the outbox payload and file name for one report.
func (p *Processor) render(trailName string, r *report.Report) ([]byte, string, error) {
	stem := strings.TrimSuffix(trailName, ".jsonl")
	switch p.cfg.Format {
	case FormatText:
		return []byte(report.FormatText(r)), stem + ".report.txt", nil
	case FormatJSON:
		out, err := report.FormatJSON(r)
		if err != nil {
			return nil, "", err
		}
		return []byte(out), stem + ".report.json", nil
	default:
		return nil, "", fmt.Errorf("unknown format %q", p.cfg.Format)
	}
}

// failure is the outbox marker written when a trail cannot be analyzed.
type failure struct {
	Trail    string    `json:"trail"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// writeFailure records an analysis failure in the outbox. The trail itself
// stays under state/failed for inspection.
func (p *Processor) writeFailure(trailName, msg string) error {
	data, err := json.MarshalIndent(failure{
		Trail:    trailName,
		Error:    msg,
		FailedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	stem := strings.TrimSuffix(trailName, ".jsonl")
	return p.writeOutbox(stem+".error.json", data)
}

// writeOutbox writes a file to the outbox directory atomically.
func (p *Processor) writeOutbox(name string, data []byte) error {
	tmpPath := filepath.Join(p.cfg.Dirs.Outbox, name+".tmp")
	finalPath := filepath.Join(p.cfg.Dirs.Outbox, name)

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	return os.Rename(tmpPath, finalPath)
}
