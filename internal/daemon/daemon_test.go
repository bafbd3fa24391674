package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/krishiv1545/django-orm-cost/internal/report"
)

func testDaemonConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Dirs:         testDirs(t),
		PollMode:     true,
		PollInterval: 50 * time.Millisecond,
		Analyze: fakeAnalyze(&report.Report{
			UnitID: "u-live", ContextID: "req-live", StartedAt: time.Now().UTC(),
		}, nil),
	}
}

func TestNewDaemonValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}

	cfg := testDaemonConfig(t)
	cfg.Analyze = nil
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for missing analyze function")
	}
}

func TestNewDaemonValid(t *testing.T) {
	d, err := New(testDaemonConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.processor == nil {
		t.Error("processor not constructed")
	}
	if d.cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("poll interval = %v", d.cfg.PollInterval)
	}
}

func TestDaemonProcessesExistingInboxFiles(t *testing.T) {
	cfg := testDaemonConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirs(cfg.Dirs); err != nil {
		t.Fatal(err)
	}
	writeInboxTrail(t, cfg.Dirs, "u-live.jsonl")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	outPath := filepath.Join(cfg.Dirs.Outbox, "u-live.report.json")
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(outPath); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("report never appeared in outbox")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

func TestRequeueOrphans(t *testing.T) {
	cfg := testDaemonConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := EnsureDirs(cfg.Dirs); err != nil {
		t.Fatal(err)
	}

	orphan := filepath.Join(cfg.Dirs.ProcessingDir(), "u-orphan.jsonl")
	if err := os.WriteFile(orphan, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := d.requeueOrphans(); err != nil {
		t.Fatalf("requeueOrphans: %v", err)
	}

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan still in processing dir")
	}
	if _, err := os.Stat(filepath.Join(cfg.Dirs.Inbox, "u-orphan.jsonl")); err != nil {
		t.Errorf("orphan not requeued to inbox: %v", err)
	}
}

func TestAcquirePIDLockRejectsLiveDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := acquirePIDLock(path); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// The lock file now holds our own live PID.
	if err := acquirePIDLock(path); err == nil {
		t.Error("second acquire should fail while the PID is alive")
	}
}

func TestAcquirePIDLockClearsStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := acquirePIDLock(path); err != nil {
		t.Errorf("stale lock not cleared: %v", err)
	}
}
