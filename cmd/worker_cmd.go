package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/temporal-agent/temporal-agent-mcp/internal/tracing"
	"github.com/temporal-agent/temporal-agent-mcp/internal/worker"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a standalone scheduler worker",
		Long:  "Run a scheduler worker without the API server. Any number of workers may share one database; the lease protocol keeps them from double-firing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, Version)
	if err != nil {
		return err
	}

	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.repo.Close()

	w := worker.New(app.repo, app.router, app.eval, worker.Options{
		PollInterval: app.cfg.PollInterval,
		BatchSize:    app.cfg.BatchSize,
		LockTimeout:  app.cfg.LockTimeout,
	})
	w.Start(ctx)

	<-ctx.Done()
	slog.Info("shutting down")
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown", "error", err)
	}
	return nil
}
