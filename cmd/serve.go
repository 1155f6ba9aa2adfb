package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/temporal-agent/temporal-agent-mcp/internal/http"
	"github.com/temporal-agent/temporal-agent-mcp/internal/tracing"
	"github.com/temporal-agent/temporal-agent-mcp/internal/worker"
)

func serveCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tool API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", true, "run an embedded scheduler worker")
	return cmd
}

func runServe(withWorker bool) error {
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

	watcher, err := app.watchConfig()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	app.limiter.Start()
	defer app.limiter.Stop()

	var w *worker.Worker
	if withWorker {
		w = worker.New(app.repo, app.router, app.eval, worker.Options{
			PollInterval: app.cfg.PollInterval,
			BatchSize:    app.cfg.BatchSize,
			LockTimeout:  app.cfg.LockTimeout,
		})
		w.Start(ctx)
		defer w.Stop()
	}

	srv := httpapi.NewServer(app.registry, app.repo, app.limiter, app.signer, httpapi.Options{
		Addr:       app.cfg.Addr(),
		Production: app.cfg.Production,
		TrustProxy: app.cfg.TrustProxy,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown", "error", err)
	}
	return nil
}
