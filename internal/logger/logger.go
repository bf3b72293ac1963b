// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// requestIDKey is the context key for request/correlation IDs.
type requestIDKey struct{}

// runIDKey is the context key for the simulation run a call belongs to.
type runIDKey struct{}

// New creates a new structured JSON logger writing to stdout at the given
// level ("debug", "info", "warn" or "error"; empty means info).
func New(level string) (*slog.Logger, error) {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with a custom destination.
func NewWithWriter(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// WithRequestID returns a new context with the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID returns a new context tagged with a simulation run ID.
func WithRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts the run ID from the context.
func RunIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(runIDKey{}).(int64)
	return v, ok
}

// FromContext returns a logger with context fields (request ID, run ID) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	logger := base
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if runID, ok := RunIDFromContext(ctx); ok {
		logger = logger.With("run_id", runID)
	}
	return logger
}
