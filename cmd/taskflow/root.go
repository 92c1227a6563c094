package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Task management API with event-driven notifications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"config file (default ./config.yaml when present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// bootstrap loads configuration and installs the root logger. The returned
// closer flushes log shipping and must be closed on exit.
func bootstrap(opts *rootOptions) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("configuration loaded",
		slog.String("version", version),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("events_backend", cfg.Events.Backend),
		slog.Bool("telegram_enabled", cfg.Telegram.BotToken != ""),
		slog.Bool("jwt_enabled", cfg.Auth.JWTSecret != ""))
	return cfg, log, closer, nil
}
