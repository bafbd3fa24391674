package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/krishiv1545/django-orm-cost/internal/config"
	"github.com/krishiv1545/django-orm-cost/internal/daemon"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Base directory (default ~/.ormcost)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the ormcost configuration and working directories",
	Long: `Creates the base directory with a commented config.yaml and the
inbox/outbox/state directories used by ormcost watch.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	base, err := initBaseDir()
	if err != nil {
		return err
	}

	var created []string

	dirs := daemon.DirConfig{
		Inbox:  filepath.Join(base, "inbox"),
		Outbox: filepath.Join(base, "outbox"),
		State:  filepath.Join(base, "state"),
	}
	if err := daemon.EnsureDirs(dirs); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	configPath := filepath.Join(base, "config.yaml")
	if wrote, err := writeIfMissing(configPath, config.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	fmt.Println("ormcost init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
	} else {
		fmt.Println("Config already exists (use --force to overwrite).")
	}
	fmt.Println()

	fmt.Println("Try the instrumented demo:")
	fmt.Println("  ormcost demo")
	fmt.Println()
	fmt.Println("Record trails by setting trail_dir to the inbox, then either:")
	fmt.Printf("  ormcost watch\n")
	fmt.Printf("  ormcost analyze %s\n", filepath.Join(dirs.Inbox, "<unit>.jsonl"))

	return nil
}

// initBaseDir returns the target directory, defaulting to ~/.ormcost.
func initBaseDir() (string, error) {
	if initDir != "" {
		return initDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".ormcost"), nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is
// set. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
