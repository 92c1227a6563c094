package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
)

// errMemoryWorker rejects a standalone worker on the in-process event log,
// which no other process can read.
var errMemoryWorker = errors.New(
	"events.backend memory only works inside the API process; set events.run_consumer_in_api instead")

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the notification consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *rootOptions) error {
	cfg, log, logCloser, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	if cfg.Events.Backend == "memory" {
		return errMemoryWorker
	}

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}

	notifier, err := app.newConsumer()
	if err != nil {
		app.close()
		return err
	}

	var server *http.Server
	if cfg.Worker.HealthPort > 0 {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Worker.HealthPort))
		if err != nil {
			app.close()
			return fmt.Errorf("failed to listen on health port %d: %w", cfg.Worker.HealthPort, err)
		}
		full, ready := app.healthCheckers(ctx)
		server = &http.Server{
			Handler:     newHealthRouter(full, ready, log),
			ReadTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("health server listening", slog.String("addr", listener.Addr().String()))
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("health server failed", slog.String("error", err.Error()))
			}
		}()
	}

	notifier.Start(context.WithoutCancel(ctx))

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout,
		map[string]gfshutdown.Operation{
			"taskflow-worker": func(ctx context.Context) error {
				log.Info("shutting down")
				var errs []error
				if err := notifier.Stop(); err != nil {
					errs = append(errs, fmt.Errorf("consumer stop: %w", err))
				}
				if server != nil {
					if err := server.Shutdown(ctx); err != nil {
						errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
					}
				}
				app.close()
				log.Info("shutdown complete")
				return errors.Join(errs...)
			},
		})

	if code := <-wait; code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	return nil
}
