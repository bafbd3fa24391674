package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/krishiv1545/django-orm-cost/internal/config"
	"github.com/krishiv1545/django-orm-cost/internal/daemon"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check setup and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "ormcost binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "ormcost binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Base directory.
	baseDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		baseDir = filepath.Join(home, ".ormcost")
	}

	if baseDir != "" {
		if info, err := os.Stat(baseDir); err == nil && info.IsDir() {
			checks = append(checks, checkResult{
				label:  "base directory",
				ok:     true,
				detail: baseDir,
			})
		} else {
			checks = append(checks, checkResult{
				label:  "base directory",
				ok:     false,
				detail: "missing",
				fix:    "ormcost init",
			})
		}
	} else {
		checks = append(checks, checkResult{
			label:  "base directory",
			ok:     false,
			detail: "cannot determine home directory",
		})
	}

	// 3. config.yaml. A missing file is fine; a broken one is not.
	configPath := cfgPath
	if configPath == "" && baseDir != "" {
		configPath = filepath.Join(baseDir, "config.yaml")
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     true,
				detail: "not found, defaults in effect",
			})
		} else if _, err := config.LoadConfig(configPath); err != nil {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     false,
				detail: err.Error(),
				fix:    "ormcost init --force",
			})
		} else {
			checks = append(checks, checkResult{
				label:  "config.yaml",
				ok:     true,
				detail: configPath,
			})
		}
	}

	// 4. Watch directories.
	dirs := daemon.DefaultDirConfig()
	for _, d := range []struct {
		label string
		path  string
	}{
		{"inbox", dirs.Inbox},
		{"outbox", dirs.Outbox},
		{"state", dirs.State},
	} {
		if info, err := os.Stat(d.path); err == nil && info.IsDir() {
			checks = append(checks, checkResult{label: d.label, ok: true, detail: d.path})
		} else {
			checks = append(checks, checkResult{
				label:  d.label,
				ok:     false,
				detail: "missing",
				fix:    "ormcost init",
			})
		}
	}

	// 5. Watch daemon.
	pid, running := daemon.Status(dirs.State)
	if running {
		checks = append(checks, checkResult{
			label:  "watch daemon",
			ok:     true,
			detail: fmt.Sprintf("running (PID %d)", pid),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "watch daemon",
			ok:     true,
			detail: "not running",
		})
	}

	// 6. Inbox backlog.
	if waiting, err := filepath.Glob(filepath.Join(dirs.Inbox, "*.jsonl")); err == nil {
		switch {
		case len(waiting) == 0:
			checks = append(checks, checkResult{label: "inbox backlog", ok: true, detail: "empty"})
		case running:
			checks = append(checks, checkResult{
				label:  "inbox backlog",
				ok:     true,
				detail: fmt.Sprintf("%d trails queued", len(waiting)),
			})
		default:
			checks = append(checks, checkResult{
				label:  "inbox backlog",
				ok:     false,
				detail: fmt.Sprintf("%d trails waiting with no daemon", len(waiting)),
				fix:    "ormcost watch",
			})
		}
	}

	// Print results.
	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-20s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}

	if hasFailures {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}
