package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/evoface/internal/constants"
	"github.com/kozaktomas/evoface/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance API server",
	Long: `Start the Evoface API server.
Capture devices post detections to /api/v1/detections; the server resolves
identities, records punches and maintains daily attendance records. Pending
template commits are retried and closed business days finalized in the
background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// runMaintenance retries failed template commits and finalizes closed days
// until ctx is cancelled.
func runMaintenance(ctx context.Context, a *app) {
	retry := time.NewTicker(constants.CommitRetryInterval * time.Second)
	defer retry.Stop()
	finalize := time.NewTicker(constants.FinalizeInterval * time.Second)
	defer finalize.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
			if a.pipeline.PendingCommits() == 0 {
				continue
			}
			n, err := a.pipeline.RetryPendingCommits(ctx)
			if err != nil {
				a.logger.Warn("template commit retry incomplete",
					zap.Int("committed", n), zap.Int("pending", a.pipeline.PendingCommits()), zap.Error(err))
			} else if n > 0 {
				a.logger.Info("pending template commits applied", zap.Int("committed", n))
			}
		case <-finalize.C:
			if _, err := a.pipeline.Finalize(ctx, time.Now()); err != nil {
				a.logger.Error("finalizing daily records failed", zap.Error(err))
			}
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	server := web.NewServer(a.cfg, a.pipeline, a.logger)
	go runMaintenance(ctx, a)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Evoface on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
