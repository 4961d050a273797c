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

	"github.com/litevault/litevault-api/internal/api"
	"github.com/litevault/litevault-api/internal/platform/observability"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var runWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the outbox worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, runWorker)
		},
	}
	cmd.Flags().BoolVar(&runWorker, "worker", true, "run the enrichment worker in this process")
	return cmd
}

func (c *cli) serve(ctx context.Context, runWorker bool) error {
	log := c.logger

	shutdownTracer, err := observability.InitTracer(c.cfg.Otel, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	app, err := newApplication(ctx, c.cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	if runWorker {
		worker, err := app.newWorker(ctx)
		if err != nil {
			return err
		}
		if err := worker.Start(); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
		defer worker.Stop()

		if listener := app.newListener(); listener != nil {
			listener.Start()
			defer listener.Stop()
		}
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", c.cfg.Server.Port),
		Handler: api.NewRouter(api.RouterDeps{
			Logger: log,
			JWT:    app.jwt,
			Items:  app.itemSvc,
			DB:     app.db,
			Outbox: app.outbox,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", c.cfg.Server.Port, "worker", runWorker)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case serveErr = <-errCh:
		log.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Deferred calls stop the listener, then the worker (waiting for in-flight
	// jobs), then close the database and flush spans.
	return serveErr
}
