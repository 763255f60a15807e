// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries the
// scan cycle id through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	cycleKey  ctxKey = "cycle"
	symbolKey ctxKey = "symbol"
)

// Init creates a JSON logger on stdout for the given service and installs
// it as the default, so log.Printf output is structured as well.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug/info/warn/error (any case) to a level. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithCycle stores the scan cycle id in ctx.
func WithCycle(ctx context.Context, cycle int64) context.Context {
	return context.WithValue(ctx, cycleKey, cycle)
}

// CycleID returns the cycle id stored in ctx, or 0.
func CycleID(ctx context.Context) int64 {
	if v, ok := ctx.Value(cycleKey).(int64); ok {
		return v
	}
	return 0
}

// WithSymbol stores the symbol being processed in ctx.
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, symbolKey, symbol)
}

// Attrs returns slog attributes for the cycle and symbol in ctx.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	var attrs []any
	if c := CycleID(ctx); c != 0 {
		attrs = append(attrs, slog.Int64("cycle", c))
	}
	if s, ok := ctx.Value(symbolKey).(string); ok && s != "" {
		attrs = append(attrs, slog.String("symbol", s))
	}
	return attrs
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}
