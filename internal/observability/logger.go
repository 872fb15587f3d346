// Package observability provides structured logging, request ID propagation,
// and OpenTelemetry tracing for the chat service.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds a slog.Logger from the configured level and format
// strings. Format "text" selects the text handler; anything else gets JSON.
func NewLogger(level, format string, output io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a configuration level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithRequestID returns a logger carrying the request ID from ctx, or the
// logger unchanged when none is set.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
