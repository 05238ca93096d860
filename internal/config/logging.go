package config

import (
	"fmt"
	"log/slog"
	"os"
)

// SetupLogging installs the default slog logger per the logging section.
// Component loggers throughout the codebase derive from this default.
func (c *Config) SetupLogging() error {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch c.Logging.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
