package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/krishiv1545/django-orm-cost/internal/daemon"
	"github.com/krishiv1545/django-orm-cost/internal/trail"
)

var (
	watchInbox     string
	watchOutbox    string
	watchState     string
	watchFormat    string
	watchPoll      bool
	watchInterval  time.Duration
	watchPrintUnit bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	dirs := daemon.DefaultDirConfig()
	watchCmd.Flags().StringVar(&watchInbox, "inbox", dirs.Inbox, "Directory watched for trail files")
	watchCmd.Flags().StringVar(&watchOutbox, "outbox", dirs.Outbox, "Directory for rendered reports")
	watchCmd.Flags().StringVar(&watchState, "state", dirs.State, "Directory for daemon state")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", daemon.FormatJSON, "Report format (text|json)")
	watchCmd.Flags().BoolVar(&watchPoll, "poll", false, "Poll the inbox instead of using fsnotify")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "Poll interval (with --poll)")
	watchCmd.Flags().BoolVar(&watchPrintUnit, "print-unit", false, "Print a systemd unit for this configuration and exit")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an inbox directory and analyze arriving trails",
	Long: "Runs the analysis daemon: trail files dropped into the inbox are\n" +
		"replayed and their reports written to the outbox. Point trail_dir at\n" +
		"the inbox to analyze live recordings continuously.",
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	dirs := daemon.DirConfig{Inbox: watchInbox, Outbox: watchOutbox, State: watchState}

	if watchPrintUnit {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot determine binary path: %w", err)
		}
		fmt.Print(daemon.UnitFile(exe, dirs))
		return nil
	}

	cfg := daemon.Config{
		Dirs:         dirs,
		Format:       watchFormat,
		PollMode:     watchPoll,
		PollInterval: watchInterval,
		Analyze:      trail.Replay,
	}

	d, err := daemon.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down watch daemon...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "ormcost watching %s\n", watchInbox)
	fmt.Fprintf(os.Stderr, "Reports: %s (%s)\n", watchOutbox, watchFormat)
	if watchPoll {
		fmt.Fprintf(os.Stderr, "Poll mode: scanning every %s\n", watchInterval)
	}
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop")
	fmt.Fprintln(os.Stderr)

	return d.Run(ctx)
}
