package utils

import (
	"strings"

	"github.com/mborders/logmatic"
)

// Logger 简单日志封装, leveled output through logmatic.
type Logger struct {
	l      *logmatic.Logger
	prefix string
}

// NewLogger returns a logger tagged with component. level is one of
// trace, debug, info, warn, error; anything else means info.
func NewLogger(component, level string) *Logger {
	l := logmatic.NewLogger()
	l.SetLevel(ParseLevel(level))
	l.ExitOnFatal = false
	return &Logger{l: l, prefix: tag(component)}
}

// ParseLevel maps a config level name to a logmatic level.
func ParseLevel(level string) logmatic.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logmatic.TRACE
	case "debug":
		return logmatic.DEBUG
	case "warn", "warning":
		return logmatic.WARN
	case "error":
		return logmatic.ERROR
	default:
		return logmatic.INFO
	}
}

// With returns a logger for a sub component sharing the same level.
func (l *Logger) With(component string) *Logger {
	return &Logger{l: l.l, prefix: l.prefix + tag(component)}
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level string) {
	l.l.SetLevel(ParseLevel(level))
}

// Debug 调试日志
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.l.Debug(l.prefix+msg, args...)
}

// Info 信息日志
func (l *Logger) Info(msg string, args ...interface{}) {
	l.l.Info(l.prefix+msg, args...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.l.Warn(l.prefix+msg, args...)
}

// Error 错误日志
func (l *Logger) Error(msg string, args ...interface{}) {
	l.l.Error(l.prefix+msg, args...)
}

func tag(component string) string {
	if component == "" {
		return ""
	}
	return "[" + component + "] "
}

var DefaultLogger = NewLogger("", "info")
