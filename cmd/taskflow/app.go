package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/consumer"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/health"
	"github.com/phrazzld/taskflow-api/internal/notify"
	"github.com/phrazzld/taskflow-api/internal/platform/gemini"
	"github.com/phrazzld/taskflow-api/internal/platform/gormstore"
	"github.com/phrazzld/taskflow-api/internal/platform/postgres"
	"github.com/phrazzld/taskflow-api/internal/platform/rabbitmq"
	"github.com/phrazzld/taskflow-api/internal/platform/redisstream"
	"github.com/phrazzld/taskflow-api/internal/platform/telegram"
	"github.com/phrazzld/taskflow-api/internal/store"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// application holds the shared dependencies of a process and releases them
// in reverse order of acquisition.
type application struct {
	config *config.Config
	logger *slog.Logger

	taskStore store.TaskStore
	publisher events.Publisher

	// Exactly one of these is set, matching events.backend.
	redis     *redis.Client
	amqpConn  *amqp.Connection
	memoryLog *events.MemoryLog

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// newApplication opens the task store and the event log.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	if err := app.openStore(ctx); err != nil {
		app.close()
		return nil, err
	}
	if err := app.openEvents(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *application) onClose(name string, fn func() error) {
	app.closers = append(app.closers, namedCloser{name: name, close: fn})
}

func (app *application) openStore(ctx context.Context) error {
	cfg := app.config.Database
	switch cfg.Driver {
	case "sqlite":
		db, err := gormstore.OpenSQLite(cfg.URL)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sqlite handle: %w", err)
		}
		app.onClose("database", sqlDB.Close)
		app.taskStore = gormstore.NewTaskStore(db, app.logger, gormstore.TaskStoreOptions{
			QueryTimeout: cfg.QueryTimeout,
		})

	default:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		app.onClose("database", db.Close)
		app.taskStore = postgres.NewPostgresTaskStore(db, app.logger, postgres.TaskStoreOptions{
			QueryTimeout: cfg.QueryTimeout,
			LockTimeout:  cfg.LockTimeout,
		})
	}

	app.logger.Info("database connection established", slog.String("driver", cfg.Driver))
	return nil
}

// openPostgres opens a pgx-backed pool and verifies it answers.
func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", postgres.MapError(err))
	}
	return db, nil
}

func (app *application) openEvents(ctx context.Context) error {
	cfg := app.config
	switch cfg.Events.Backend {
	case "rabbitmq":
		conn, err := rabbitmq.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		app.amqpConn = conn
		app.onClose("rabbitmq", conn.Close)

		publisher, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQ.Queue, app.logger)
		if err != nil {
			return err
		}
		app.onClose("rabbitmq publisher", publisher.Close)
		app.publisher = publisher

	case "memory":
		app.memoryLog = events.NewMemoryLog(app.logger)
		app.publisher = app.memoryLog

	default:
		client := redisstream.NewClient(cfg.Redis)
		app.onClose("redis", client.Close)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		if err := redisstream.Ping(pingCtx, client); err != nil {
			return err
		}
		app.redis = client
		app.publisher = redisstream.NewPublisher(client, cfg.Events.Stream, cfg.Events.MaxLen, app.logger)
	}

	app.logger.Info("event log ready", slog.String("backend", cfg.Events.Backend))
	return nil
}

// newSubscription joins the notification consumer group on the configured
// backend.
func (app *application) newSubscription() (events.Subscription, error) {
	cfg := app.config.Events
	switch {
	case app.redis != nil:
		return redisstream.NewSubscription(app.redis, redisstream.SubscriptionConfig{
			Stream:       cfg.Stream,
			Group:        cfg.Group,
			Consumer:     cfg.Consumer,
			BatchSize:    int64(cfg.BatchSize),
			Block:        cfg.Block,
			ClaimMinIdle: cfg.ClaimMinIdle,
		}, app.logger), nil

	case app.amqpConn != nil:
		return rabbitmq.NewSubscription(app.amqpConn, rabbitmq.SubscriptionConfig{
			Queue:       app.config.RabbitMQ.Queue,
			ConsumerTag: cfg.Consumer,
			Prefetch:    app.config.RabbitMQ.Prefetch,
			BatchSize:   cfg.BatchSize,
			Block:       cfg.Block,
		}, app.logger)

	case app.memoryLog != nil:
		return app.memoryLog.Subscribe(cfg.Group, cfg.Consumer, cfg.BatchSize, cfg.Block), nil

	default:
		return nil, errors.New("event log is not open")
	}
}

// newSender returns the Telegram client, or a LogSender when no bot token
// is configured.
func (app *application) newSender() (notify.Sender, *telegram.Client, error) {
	client, err := telegram.NewClient(app.config.Telegram, app.logger)
	if errors.Is(err, telegram.ErrNotConfigured) {
		app.logger.Warn("telegram not configured, notifications will only be logged")
		return notify.NewLogSender(app.logger), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

// newConsumer wires the notification consumer to the event log and sender.
func (app *application) newConsumer() (*consumer.Consumer, error) {
	types, err := notify.ParseTypes(app.config.Events.NotifyTypes)
	if err != nil {
		return nil, fmt.Errorf("invalid events.notify_types: %w", err)
	}
	sender, _, err := app.newSender()
	if err != nil {
		return nil, err
	}
	sub, err := app.newSubscription()
	if err != nil {
		return nil, err
	}
	return consumer.New(sub, notify.NewFormatter(types), sender, consumer.Config{
		MaxDeliveries: app.config.Events.MaxDeliveries,
		RetryBackoff:  app.config.Events.RetryBackoff,
	}, app.logger), nil
}

// healthCheckers returns the aggregate checker and the readiness checker.
// The database and event log are critical; Telegram and Gemini are optional
// and only checked when configured.
func (app *application) healthCheckers(ctx context.Context) (full, ready *health.Checker) {
	database := health.Check{Name: "database", Critical: true, Fn: app.taskStore.Ping}
	checks := []health.Check{database}

	if fn := app.eventLogCheck(); fn != nil {
		checks = append(checks, health.Check{Name: "event_log", Critical: true, Fn: fn})
	}
	if client, err := telegram.NewClient(app.config.Telegram, app.logger); err == nil {
		checks = append(checks, health.Check{Name: "telegram", Fn: client.CheckHealth})
	}
	if probe, err := gemini.NewProbe(ctx, app.config.Gemini, app.logger); err == nil {
		checks = append(checks, health.Check{Name: "gemini", Fn: probe.CheckHealth})
	} else if !errors.Is(err, gemini.ErrNotConfigured) {
		app.logger.Warn("gemini probe disabled", slog.String("error", err.Error()))
	}

	return health.NewChecker(health.DefaultTimeout, app.logger, checks...),
		health.NewChecker(health.DefaultTimeout, app.logger, database)
}

func (app *application) eventLogCheck() health.CheckFunc {
	switch {
	case app.redis != nil:
		return func(ctx context.Context) error { return redisstream.Ping(ctx, app.redis) }
	case app.amqpConn != nil:
		return func(context.Context) error {
			if app.amqpConn.IsClosed() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		}
	default:
		return nil
	}
}

// close releases resources in reverse order and logs failures.
func (app *application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.close(); err != nil {
			app.logger.Error("failed to close resource",
				slog.String("resource", c.name),
				slog.String("error", err.Error()))
		}
	}
	app.closers = nil
}

// shutdownTimeout bounds graceful shutdown of a process.
const shutdownTimeout = 30 * time.Second
