package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/telemetry"
	"github.com/boardsync/boardsync/internal/ui"
)

var (
	validateFile    string
	validatePreview bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Dry-run a plan file without mutating anything",
	Long: `Run the full reconciliation read path against the remote repository and
report what a sync would do. Nothing is created or modified; a missing
board is reported as a would-be creation.

With --preview, each would-be issue body is rendered as markdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.ValidateRemote(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		f, err := loadPlanFile(validateFile)
		if err != nil {
			return err
		}

		engine := buildEngine(f)
		started := time.Now()
		report, runErr := engine.Validate(ctx, f)
		telemetry.RecordReconcileDuration(ctx, report.DryRun, time.Since(started))

		renderReport(report)

		if validatePreview && !jsonOutput {
			for i := range f.Items {
				fmt.Println(ui.RenderSeparator())
				fmt.Printf("%s\n", ui.RenderHeader(f.Items[i].Title))
				fmt.Print(ui.RenderMarkdown(f.Items[i].RenderBody(f.ProjectTitle)))
				fmt.Println()
			}
		}

		if runErr != nil {
			return fmt.Errorf("validate aborted: %w", runErr)
		}
		if n := report.Metrics.Failed; n > 0 {
			return fmt.Errorf("%d of %d specs invalid or failing", n, report.Metrics.Total)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "Plan file (.yaml, .json, or .toml)")
	_ = validateCmd.MarkFlagRequired("file")
	validateCmd.Flags().BoolVar(&validatePreview, "preview", false, "Render each would-be issue body as markdown")
}
