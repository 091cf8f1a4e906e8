// Package observability provides structured logging and metrics collection
// shared by every core component (ledger, mutation engine, scheduler,
// governance hub, content scanner).
//
// Logger wraps log/slog with component-specific context fields.
// Metrics wraps Prometheus collectors for the counters/gauges the control
// plane reports (ledger appends, engine aborts, scheduler transitions,
// breaker trips, gate outcomes).
package observability

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with persistent component context.
type Logger struct {
	mu        sync.RWMutex
	inner     *slog.Logger
	component string
	fields    []slog.Attr
}

// NewLogger creates a structured logger for a given component.
// Output defaults to os.Stderr if w is nil.
func NewLogger(component string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{
		inner:     slog.New(handler),
		component: component,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(component string, h slog.Handler) *Logger {
	return &Logger{
		inner:     slog.New(h),
		component: component,
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:     l.inner.With(slog.Any(key, value)),
		component: l.component,
		fields:    append(l.fields, slog.Any(key, value)),
	}
}

// attrs prepends the component name to the arguments.
func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("component", l.component)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// LedgerEvent logs a ledger append.
func (l *Logger) LedgerEvent(eventType, hash string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("event_type", eventType),
		slog.String("hash", hash),
	}, args...)
	l.inner.Info("ledger_event", allArgs...)
}

// Cycle logs a mutation engine cycle stage event.
func (l *Logger) Cycle(planHash, stage string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("plan_hash", planHash),
		slog.String("stage", stage),
	}, args...)
	l.inner.Info(stage, allArgs...)
}

// ComponentName returns the component name associated with this logger.
func (l *Logger) ComponentName() string {
	return l.component
}
