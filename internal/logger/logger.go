// Package logger configures the application slog loggers.
//
// In dev/test environments logs are rendered with the tint handler for
// readability; prod/staging use the standard JSON handler so logs can be
// shipped to a log aggregator.
//
// Handlers can attach a request-scoped logger to the request context with
// ContextWithRequestLogger; downstream code retrieves it with
// ContextRequestLogger and never needs to know how the logger was built.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type contextKey int

const requestLoggerKey contextKey = iota

// ParseLogLevel converts a level string (debug, info, warn, error) to a
// slog.Level. Unrecognized values default to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger creates the application logger for the given environment and
// installs it as the slog default.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ContextWithRequestLogger returns a context carrying a request-scoped logger.
func ContextWithRequestLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, logger)
}

// ContextRequestLogger returns the request-scoped logger from the context,
// falling back to the default logger when none was attached.
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
