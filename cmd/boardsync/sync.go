package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/plan"
	"github.com/boardsync/boardsync/internal/reconcile"
	"github.com/boardsync/boardsync/internal/telemetry"
	"github.com/boardsync/boardsync/internal/ui"
)

var (
	syncFile   string
	syncDryRun bool
	syncWatch  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a plan file against the repository and its board",
	Long: `Load a plan file and drive the repository to its desired state: create
missing issues, top up labels, resolve the board (creating it when
absent), and put every planned issue on it with an initial status.

With --watch, reconciliation re-runs whenever the plan file is saved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.ValidateRemote(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if syncWatch {
			return watchAndSync(ctx, syncFile)
		}
		return runSyncOnce(ctx, syncFile)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVarP(&syncFile, "file", "f", "", "Plan file (.yaml, .json, or .toml)")
	_ = syncCmd.MarkFlagRequired("file")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Preview changes without mutating anything")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Re-run reconciliation when the plan file changes")
}

// loadPlanFile loads a plan and fills missing repo coordinates from the
// configuration.
func loadPlanFile(path string) (*plan.File, error) {
	f, err := plan.Load(path)
	if err != nil {
		return nil, err
	}
	if f.Owner == "" {
		f.Owner = appConfig.Owner
	}
	if f.Repo == "" {
		f.Repo = appConfig.Repo
	}
	if f.ProjectTitle == "" {
		f.ProjectTitle = appConfig.ProjectTitle
	}
	if f.Owner == "" || f.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required (plan file, config file, or environment)")
	}
	return f, nil
}

// buildEngine wires a reconciliation engine for the plan's repository.
func buildEngine(f *plan.File) *reconcile.Engine {
	client := telemetry.WrapClient(appConfig.Client().WithRepo(f.Owner, f.Repo))
	engine := reconcile.NewEngine(client)
	engine.OnMessage = func(msg string) { log.Info().Msg(msg) }
	engine.OnWarning = func(msg string) { log.Warn().Msg(msg) }
	return engine
}

func renderReport(report *reconcile.Report) {
	if jsonOutput {
		outputJSON(report)
		return
	}
	fmt.Print(ui.RenderReport(report))
}

func runSyncOnce(ctx context.Context, path string) error {
	f, err := loadPlanFile(path)
	if err != nil {
		return err
	}
	f.DryRun = f.DryRun || syncDryRun

	engine := buildEngine(f)
	started := time.Now()
	report, runErr := engine.Sync(ctx, f)
	telemetry.RecordReconcileDuration(ctx, report.DryRun, time.Since(started))

	renderReport(report)

	if runErr != nil {
		return fmt.Errorf("sync aborted: %w", runErr)
	}
	if n := report.Metrics.Failed; n > 0 {
		return fmt.Errorf("%d of %d specs failed", n, report.Metrics.Total)
	}
	return nil
}

// watchAndSync reconciles once, then re-runs on every plan-file save until
// interrupted.
func watchAndSync(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors save atomically via rename, so watch the directory and filter
	// events down to the plan file.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	runOnce := func() {
		if err := runSyncOnce(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)")
	}
	runOnce()

	base := filepath.Base(path)
	var debounceTimer *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nStopped watching.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			// Debounce rapid changes
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, runOnce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		}
	}
}
