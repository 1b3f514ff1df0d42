// Package obslog is agentctl's structured logging setup: JSON or text
// output via log/slog, configured entirely from the environment so the
// CLI never needs its own logging flags.
package obslog

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger for service and returns it.
func Init(service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("AGENTCTL_JSON_LOG"), "true") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "level", opts.Level)
	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("AGENTCTL_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
