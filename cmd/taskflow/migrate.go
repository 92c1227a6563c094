package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskflow-api/internal/platform/postgres"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

// migrationTableName is the goose bookkeeping table.
const migrationTableName = "schema_migrations"

// gooseLogger forwards goose output to slog. Fatalf does not exit; the
// failing goose call still returns its error to the command.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// migrationCommands maps subcommands to the goose operations they run.
var migrationCommands = map[string]struct {
	short string
	run   func(ctx context.Context, db *sql.DB) error
}{
	"up": {"Apply all pending migrations", func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, postgres.MigrationsDir)
	}},
	"down": {"Roll back the latest migration", func(ctx context.Context, db *sql.DB) error {
		return goose.DownContext(ctx, db, postgres.MigrationsDir)
	}},
	"reset": {"Roll back every migration", func(ctx context.Context, db *sql.DB) error {
		return goose.ResetContext(ctx, db, postgres.MigrationsDir)
	}},
	"status": {"Print the state of each migration", func(ctx context.Context, db *sql.DB) error {
		return goose.StatusContext(ctx, db, postgres.MigrationsDir)
	}},
	"version": {"Print the current schema version", func(ctx context.Context, db *sql.DB) error {
		return goose.VersionContext(ctx, db, postgres.MigrationsDir)
	}},
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
		Long: "Run the embedded goose migrations against database.url. " +
			"The sqlite driver migrates itself on open and needs none of this.",
	}
	for _, name := range []string{"up", "down", "reset", "status", "version"} {
		name := name
		cmd.AddCommand(&cobra.Command{
			Use:   name,
			Short: migrationCommands[name].short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), opts, name)
			},
		})
	}
	return cmd
}

func runMigrate(ctx context.Context, opts *rootOptions, command string) error {
	cfg, log, logCloser, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("migrate requires database.driver postgres, got %q", cfg.Database.Driver)
	}

	db, err := openPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	log = log.With(slog.String("component", "migrations"), slog.String("command", command))
	if err := configureGoose(log); err != nil {
		return err
	}

	log.Info("running migrations")
	if err := migrationCommands[command].run(ctx, db); err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("migrations finished")
	return nil
}

// configureGoose points goose at the embedded migrations. goose keeps this
// state in package globals.
func configureGoose(log *slog.Logger) error {
	goose.SetBaseFS(postgres.Migrations)
	goose.SetLogger(gooseLogger{logger: log})
	goose.SetTableName(migrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return nil
}
