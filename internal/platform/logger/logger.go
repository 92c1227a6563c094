package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
	"github.com/phrazzld/taskflow-api/internal/config"
)

// ParseLevel converts a configured level name to a slog.Level.
// Unknown names fall back to info and report ok=false.
func ParseLevel(name string) (level slog.Level, ok bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// NewHandler returns the console handler for the configured format writing
// to w.
func NewHandler(cfg config.LogConfig, w io.Writer) slog.Handler {
	level, _ := ParseLevel(cfg.Level)
	if cfg.Format == "text" {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Setup initializes the application's logging system from cfg and sets the
// result as the slog default. The returned closer flushes and disconnects
// the Fluent client, if one was configured, and must be called on shutdown.
func Setup(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	if _, ok := ParseLevel(cfg.Level); !ok {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Warn(
			"invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	handler := NewHandler(cfg, os.Stdout)
	var closer io.Closer = nopCloser{}

	if cfg.Fluent.Enabled {
		client, err := fluent.New(fluent.Config{
			FluentHost: cfg.Fluent.Host,
			FluentPort: cfg.Fluent.Port,
			TagPrefix:  cfg.Fluent.TagPrefix,
			Async:      true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create fluent client: %w", err)
		}
		level, _ := ParseLevel(cfg.Level)
		handler = NewTeeHandler(handler, NewFluentHandler(client, level))
		closer = client
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
