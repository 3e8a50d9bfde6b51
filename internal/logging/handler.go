// Package logging builds the structured loggers used across the simulation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
)

// clockHandler stamps every record with the simulated clock.
type clockHandler struct {
	handler slog.Handler
	clock   func() float64
}

// Handle adds the simulated time to the log record.
func (h *clockHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(slog.Float64("sim_time", h.clock()))
	return h.handler.Handle(ctx, r)
}

// Enabled returns true if the level is enabled.
func (h *clockHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes.
func (h *clockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &clockHandler{handler: h.handler.WithAttrs(attrs), clock: h.clock}
}

// WithGroup returns a new handler with the given group.
func (h *clockHandler) WithGroup(name string) slog.Handler {
	return &clockHandler{handler: h.handler.WithGroup(name), clock: h.clock}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Setup creates a configured slog.Logger.
// format: "json" or "text" (defaults to "text" if empty)
// If w is nil, writes to os.Stdout.
func Setup(level, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetDefault sets up and configures the default logger.
func SetDefault(level, format string) *slog.Logger {
	logger := Setup(level, format, nil)
	slog.SetDefault(logger)
	return logger
}

// WithClock returns a logger that records the simulated time on every line.
func WithClock(logger *slog.Logger, clock func() float64) *slog.Logger {
	return slog.New(&clockHandler{handler: logger.Handler(), clock: clock})
}

// LogError logs an error with its code and context when it carries them.
func LogError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil && code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, "error", err)
}
