// Package log provides structured logging for go-lpr.
// It wraps slog with a process-wide default and per-component loggers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// ParseLevel maps a level name to a slog.Level.
// Unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Init initializes the global logger with the specified level.
// Only the first call has an effect.
func Init(level string) {
	InitWithRing(level, nil)
}

// InitWithRing is Init with every record also kept in ring.
func InitWithRing(level string, ring *Ring) {
	once.Do(func() {
		h := handler(os.Stdout, level, os.Getenv("GO_ENV") == "production")
		if ring != nil {
			h = ring.Handler(h)
		}
		logger = slog.New(h)
		slog.SetDefault(logger)
	})
}

// New builds a standalone logger writing to w. JSON output is used when
// json is true, text otherwise.
func New(w io.Writer, level string, json bool) *slog.Logger {
	return slog.New(handler(w, level, json))
}

func handler(w io.Writer, level string, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Or returns l, or the component logger for name when l is nil.
func Or(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l.With("component", name)
	}
	return Component(name)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}
