package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/phrazzld/taskflow-api/internal/consumer"
	"github.com/phrazzld/taskflow-api/internal/service"
	"github.com/phrazzld/taskflow-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the task HTTP API. With events.run_consumer_in_api the notification " +
			"consumer runs in the same process.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, logCloser, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return err
	}

	var jwtService auth.JWTService
	if cfg.Auth.JWTSecret != "" {
		if jwtService, err = auth.NewJWTService(cfg.Auth); err != nil {
			app.close()
			return err
		}
	}

	taskService, err := service.NewTaskService(app.taskStore, app.publisher, log)
	if err != nil {
		app.close()
		return err
	}

	var notifier *consumer.Consumer
	if cfg.Events.RunConsumerInAPI {
		if notifier, err = app.newConsumer(); err != nil {
			app.close()
			return err
		}
	} else if app.memoryLog != nil {
		log.Warn("memory event log without an in-process consumer, events are never delivered")
	}

	full, ready := app.healthCheckers(ctx)
	server := &http.Server{
		Handler: newRouter(routerDeps{
			taskService: taskService,
			jwtService:  jwtService,
			limiter:     app.newLimiter(),
			full:        full,
			ready:       ready,
			corsOrigins: cfg.Server.CORSOrigins,
			info:        serviceInfo(cfg.Server.Environment),
			logger:      log,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	// Bind before serving so an occupied port fails startup.
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		app.close()
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
	}

	if notifier != nil {
		notifier.Start(context.WithoutCancel(ctx))
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var once sync.Once
	var stopErr error
	stop := func(ctx context.Context) error {
		once.Do(func() { stopErr = shutdownServe(ctx, log, server, notifier, app) })
		return stopErr
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout,
		map[string]gfshutdown.Operation{"taskflow-api": stop})

	select {
	case code := <-wait:
		if code != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", code)
		}
		return nil
	case err, ok := <-serveErr:
		if !ok {
			// Serve returned because a signal started the shutdown.
			if code := <-wait; code != 0 {
				return fmt.Errorf("shutdown finished with exit code %d", code)
			}
			return nil
		}
		log.Error("server failed", slog.String("error", err.Error()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = stop(shutdownCtx)
		return fmt.Errorf("server failed: %w", err)
	}
}

// shutdownServe stops accepting requests, drains in-flight ones, stops the
// consumer after its current batch and only then closes the store and event
// log they depend on.
func shutdownServe(
	ctx context.Context,
	log *slog.Logger,
	server *http.Server,
	notifier *consumer.Consumer,
	app *application,
) error {
	log.Info("shutting down")
	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if notifier != nil {
		if err := notifier.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("consumer stop: %w", err))
		}
	}
	app.close()
	log.Info("shutdown complete")
	return errors.Join(errs...)
}
