package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/logging"
	"github.com/boardsync/boardsync/internal/telemetry"
)

var (
	configPath  string
	verboseFlag bool
	noColorFlag bool
	jsonOutput  bool

	// appConfig is loaded once per invocation in PersistentPreRunE.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "boardsync",
	Short: "boardsync - declarative GitHub issue and board reconciliation",
	Long: `Reconcile a plan file of desired issues against a GitHub repository and
its Projects v2 board: create what is missing, top up labels, and put
every planned issue on the board. Runs are idempotent; a second pass
over a converged repository changes nothing.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg

		level := cfg.LogLevel
		if verboseFlag {
			level = "debug"
		}
		logging.Init(logging.Options{Level: level, File: cfg.LogFile, NoColor: noColorFlag})

		if err := telemetry.Init(cmd.Context(), "boardsync", Version); err != nil {
			log.Warn().Err(err).Msg("telemetry init failed")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := telemetry.Shutdown(cmd.Context()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .boardsync.yaml in current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
