package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciliation HTTP service",
	Long: `Serve reconciliation over HTTP: GET /health, GET /issues,
POST /validate, and POST /sync. Requests may carry their own owner,
repo, and project title; the configured values are the fallback.

The service stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig.Token == "" {
			return fmt.Errorf("a GitHub token is required to serve; set token in %s or BOARDSYNC_TOKEN", config.DefaultConfigFile)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.NewServer(appConfig, log.Logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(serveAddr) }()
		log.Info().Str("addr", serveAddr).Msg("boardsync service listening")

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Info().Msg("boardsync service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
}
