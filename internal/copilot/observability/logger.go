// Package observability configures structured logging for the copilot
// binaries and attaches the turn's trace ID to log lines.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/parallels/devops-copilot/common/trace"
)

// Setup installs the default slog logger writing to stdout. level is one of
// debug|info|warn|error; format is "json" or anything else for text.
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination. copilotctl logs to
// stderr so stdout carries only replies.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// WithTrace returns the default logger with trace_id set when ctx carries one.
func WithTrace(ctx context.Context) *slog.Logger {
	if id := trace.FromContext(ctx); id != "" {
		return slog.With("trace_id", id)
	}
	return slog.Default()
}
