package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/report"
)

func fakeAnalyze(r *report.Report, err error) AnalyzeFunc {
	return func(path string) (*report.Report, error) {
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

func writeInboxTrail(t *testing.T, cfg DirConfig, name string) string {
	t.Helper()
	path := filepath.Join(cfg.Inbox, name)
	if err := os.WriteFile(path, []byte(`{"kind":"begin","unit_id":"u-1"}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessWritesJSONReport(t *testing.T) {
	cfg := testDirs(t)
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(ProcessorConfig{
		Dirs:    cfg,
		Analyze: fakeAnalyze(&report.Report{UnitID: "u-1", ContextID: "req-1", StartedAt: time.Now().UTC()}, nil),
	})

	trailPath := writeInboxTrail(t, cfg, "u-1.jsonl")
	if err := p.Process(context.Background(), trailPath); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if _, err := os.Stat(trailPath); !os.IsNotExist(err) {
		t.Error("trail still in inbox after processing")
	}

	outPath := filepath.Join(cfg.Outbox, "u-1.report.json")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if r.UnitID != "u-1" {
		t.Errorf("report unit = %q, want u-1", r.UnitID)
	}

	entries, _ := os.ReadDir(cfg.ProcessingDir())
	if len(entries) != 0 {
		t.Errorf("processing dir not cleaned: %d entries", len(entries))
	}
}

func TestProcessTextFormat(t *testing.T) {
	cfg := testDirs(t)
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(ProcessorConfig{
		Dirs:    cfg,
		Format:  FormatText,
		Analyze: fakeAnalyze(&report.Report{UnitID: "u-2", ContextID: "req-2", StartedAt: time.Now().UTC()}, nil),
	})

	if err := p.Process(context.Background(), writeInboxTrail(t, cfg, "u-2.jsonl")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Outbox, "u-2.report.txt"))
	if err != nil {
		t.Fatalf("text report not written: %v", err)
	}
	if !strings.Contains(string(data), "Unit: u-2") {
		t.Errorf("unexpected text report:\n%s", data)
	}
}

func TestProcessFailureKeepsTrailAndWritesMarker(t *testing.T) {
	cfg := testDirs(t)
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(ProcessorConfig{
		Dirs:    cfg,
		Analyze: fakeAnalyze(nil, fmt.Errorf("trail u-3.jsonl has no begin event")),
	})

	if err := p.Process(context.Background(), writeInboxTrail(t, cfg, "u-3.jsonl")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Outbox, "u-3.error.json"))
	if err != nil {
		t.Fatalf("error marker not written: %v", err)
	}
	var f failure
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Trail != "u-3.jsonl" || !strings.Contains(f.Error, "no begin event") {
		t.Errorf("failure marker = %+v", f)
	}

	if _, err := os.Stat(filepath.Join(cfg.FailedDir(), "u-3.jsonl")); err != nil {
		t.Errorf("failed trail not preserved: %v", err)
	}
}

func TestProcessRejectsSymlink(t *testing.T) {
	cfg := testDirs(t)
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(t.TempDir(), "outside.jsonl")
	if err := os.WriteFile(target, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(cfg.Inbox, "sneaky.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	p := NewProcessor(ProcessorConfig{
		Dirs:    cfg,
		Analyze: fakeAnalyze(&report.Report{UnitID: "u-4"}, nil),
	})

	if err := p.Process(context.Background(), link); err == nil {
		t.Fatal("expected an error for a symlinked trail")
	}
	entries, _ := os.ReadDir(cfg.Outbox)
	if len(entries) != 0 {
		t.Errorf("outbox should stay empty, got %d entries", len(entries))
	}
}

func TestProcessUnknownFormat(t *testing.T) {
	cfg := testDirs(t)
	if err := EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(ProcessorConfig{
		Dirs:    cfg,
		Format:  "yaml",
		Analyze: fakeAnalyze(&report.Report{UnitID: "u-5"}, nil),
	})

	if err := p.Process(context.Background(), writeInboxTrail(t, cfg, "u-5.jsonl")); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Outbox, "u-5.error.json")); err != nil {
		t.Errorf("error marker not written for unknown format: %v", err)
	}
}
