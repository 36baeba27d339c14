package sfdb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogLevel is a bitmask of log areas enabled via the "log" connection string
// key.
type LogLevel uint8

const (
	LogError LogLevel = 1 << iota
	LogRecovery
	LogCommand
	LogLock
	LogQuery
	LogJournal
	LogCache
	LogDisk

	LogFull LogLevel = 0xFF
)

var logLevelNames = [...]string{"error", "recovery", "command", "lock", "query", "journal", "cache", "disk"}

func (l LogLevel) String() string {
	if l == 0 {
		return "none"
	}
	var parts []string
	for i, name := range logLevelNames {
		if l&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Logger writes messages for the enabled areas to a *slog.Logger. A nil
// *Logger discards everything.
type Logger struct {
	Level LogLevel
	out   *slog.Logger
}

func NewLogger(level LogLevel, out *slog.Logger) *Logger {
	if out == nil {
		out = slog.Default()
	}
	return &Logger{Level: level, out: out}
}

func (l *Logger) Enabled(level LogLevel) bool {
	return l != nil && l.Level&level != 0
}

// Write logs a message in the given area if that area is enabled. Errors are
// logged at slog.LevelError, everything else at slog.LevelDebug.
func (l *Logger) Write(level LogLevel, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	sl := slog.LevelDebug
	if level == LogError {
		sl = slog.LevelError
	}
	l.out.LogAttrs(context.Background(), sl, fmt.Sprintf(format, args...), slog.String("area", level.String()))
}

// WriteAttrs is Write with structured attributes and a fixed message.
func (l *Logger) WriteAttrs(level LogLevel, msg string, attrs ...slog.Attr) {
	if !l.Enabled(level) {
		return
	}
	sl := slog.LevelDebug
	if level == LogError {
		sl = slog.LevelError
	}
	l.out.LogAttrs(context.Background(), sl, msg, append(attrs, slog.String("area", level.String()))...)
}
