package logger

import (
	"context"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Config controls how the process-wide logger renders.
type Config struct {
	Level  string
	JSON   bool
	Output io.Writer
}

type ctxKey struct{}

var std = New(Config{})

// New builds a charm logger from cfg.
func New(cfg Config) *charmlog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := charmlog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = charmlog.InfoLevel
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           level,
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return l
}

// Init replaces the default logger and returns it.
func Init(cfg Config) *charmlog.Logger {
	std = New(cfg)
	return std
}

// Default returns the process-wide logger.
func Default() *charmlog.Logger { return std }

// With returns a child of the default logger carrying keyvals.
func With(keyvals ...any) *charmlog.Logger { return std.With(keyvals...) }

// NewForTests returns a logger that discards everything.
func NewForTests() *charmlog.Logger {
	return charmlog.NewWithOptions(io.Discard, charmlog.Options{})
}

// ContextWithLogger attaches l to ctx.
func ContextWithLogger(ctx context.Context, l *charmlog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or the default logger.
func FromContext(ctx context.Context) *charmlog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*charmlog.Logger); ok && l != nil {
			return l
		}
	}
	return std
}
