package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailroom/internal/api"
	"github.com/busybox42/mailroom/internal/delivery"
	"github.com/busybox42/mailroom/internal/dispatch"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the delivery worker",
	Long: `Runs the delivery worker: consumes dispatch submissions, drives the
delivery engine, periodically retries failed messages and re-submits stuck
ones, and serves the observability endpoint.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := slog.Default().With("component", "worker")

	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.attachTrigger(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Kafka dispatch publishes only; the worker also consumes the topic.
	if a.cfg.Dispatch.Type == "kafka" {
		consumer, err := dispatch.NewConsumer(a.cfg.Dispatch, a.engine)
		if err != nil {
			return err
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("kafka consumer exited", "error", err)
				stop()
			}
		}()
	}

	coordinator := delivery.NewCoordinator(a.store, a.engine, a.cfg.Retry)
	go coordinator.Run(ctx)

	var apiServer *api.Server
	if a.cfg.API.Enabled {
		apiServer = api.NewServer(a.store, a.cfg.API.Listen)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server exited", "error", err)
				stop()
			}
		}()
	}

	logger.Info("worker started",
		"dispatch", a.cfg.Dispatch.Type,
		"retry_interval", a.cfg.Retry.Interval)
	<-ctx.Done()
	logger.Info("shutting down")

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown failed: %w", err)
		}
	}
	return nil
}
