// Package logger configures the process-wide slog logger and carries
// request-scoped attributes through contexts.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type (
	requestIDKey struct{}
	attrsKey     struct{}
)

// Setup installs a slog default logger writing to stdout. An unknown level
// falls back to info.
func Setup(level string, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger for w; format is "json" or "text". Debug loggers also
// record the source position.
func New(w io.Writer, level string, format string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel accepts the slog level names (case-insensitive, with optional
// offsets such as "debug+2") and "warning". The empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	level = strings.TrimSpace(level)
	switch strings.ToLower(level) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithAttrs returns a context whose FromContext logger carries args in
// addition to any attributes already attached.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// FromContext returns the default logger with the request ID and any
// WithAttrs attributes of ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID := RequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if attrs, ok := ctx.Value(attrsKey{}).([]any); ok && len(attrs) > 0 {
		logger = logger.With(attrs...)
	}
	return logger
}
