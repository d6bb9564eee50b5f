// Package observability configures the zerolog logger shared by the API, the
// CLI and the engine packages, and carries request trace IDs in contexts.
package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger scoped with catalog engine fields. Level methods
// return the zerolog event directly.
type Logger struct {
	zl zerolog.Logger
}

// LogConfig configures NewLogger.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// NewLogger builds a leveled logger tagged with the service name. Output
// defaults to stdout.
func NewLogger(cfg LogConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "catalog-engine"
	}

	zl := zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
	return &Logger{zl: zl}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal exits the process after the event is written.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// WithContext adds the request trace ID carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		return l.WithField("trace_id", id)
	}
	return l
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

func (l *Logger) WithConversation(id string) *Logger {
	return l.WithField("conversation_id", id)
}

// WithField returns a child logger that adds key=val to every event.
func (l *Logger) WithField(key, val string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, val).Logger()}
}

// ParseLevel maps a config level to zerolog. "warning" is accepted; anything
// unrecognised is info.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

type traceIDKey struct{}

// ContextWithTraceID stores the request trace ID.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID or "".
func TraceIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(traceIDKey{}).(string)
	return s
}
