// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer TurnLogger with contextual
// helpers (session, turn, component) and domain specific logging helpers for
// tools, model calls and routing decisions.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Level is a thin enum for user friendly level configuration decoupled from slog.
type Level int

const (
	// LevelDebug is the debug logging level.
	LevelDebug Level = iota
	// LevelInfo is the informational logging level.
	LevelInfo
	// LevelWarn is the warning logging level.
	LevelWarn
	// LevelError is the error logging level.
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level, defaulting to
// info for unknown values.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger defines the minimal logging interface used across the engine.
// This allows users to provide their own logger implementation or use the
// built-in slog adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// Config configures construction of a TurnLogger.
type Config struct {
	Level     Level
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	SessionID string
	TurnID    string
}

// DefaultConfig returns a baseline JSON info level configuration.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, Format: "json", Output: os.Stdout, AddSource: true}
}

// TurnLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. It is cheap to copy via the With* methods.
type TurnLogger struct {
	logger    *slog.Logger
	level     Level
	component string
	sessionID string
	turnID    string
}

// NewLogger builds a TurnLogger from a config (or defaults if nil).
func NewLogger(cfg *Config) *TurnLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &TurnLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component, sessionID: cfg.SessionID, turnID: cfg.TurnID}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *TurnLogger) clone() *TurnLogger {
	nl := *l
	return &nl
}

// WithComponent sets the logical component (pipeline, routing, tool, etc.).
func (l *TurnLogger) WithComponent(c string) *TurnLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches session and turn identifiers.
func (l *TurnLogger) WithSession(sessionID, turnID string) *TurnLogger {
	nl := l.clone()
	nl.sessionID = sessionID
	nl.turnID = turnID
	return nl
}

func (l *TurnLogger) attrs(extra []any) []any {
	args := make([]any, 0, len(extra)+6)
	if l.component != "" {
		args = append(args, "component", l.component)
	}
	if l.sessionID != "" {
		args = append(args, "session_id", l.sessionID)
	}
	if l.turnID != "" {
		args = append(args, "turn_id", l.turnID)
	}
	return append(args, extra...)
}

// Debug logs at debug level.
func (l *TurnLogger) Debug(msg string, args ...any) {
	if l.level > LevelDebug {
		return
	}
	l.logger.Debug(msg, l.attrs(args)...)
}

// Info logs at info level.
func (l *TurnLogger) Info(msg string, args ...any) {
	if l.level > LevelInfo {
		return
	}
	l.logger.Info(msg, l.attrs(args)...)
}

// Warn logs at warn level.
func (l *TurnLogger) Warn(msg string, args ...any) {
	if l.level > LevelWarn {
		return
	}
	l.logger.Warn(msg, l.attrs(args)...)
}

// Error logs at error level.
func (l *TurnLogger) Error(msg string, args ...any) {
	l.logger.Error(msg, l.attrs(args)...)
}

// LogToolCall records execution details for a tool invocation.
func (l *TurnLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	args := []any{"tool_name", tool, "duration_ms", dur.Milliseconds(), "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		l.Info("tool execution completed", args...)
		return
	}
	l.Error("tool execution failed", args...)
}

// LogModelCall records model call latency, token usage and success.
func (l *TurnLogger) LogModelCall(model string, tokens int, dur time.Duration, success bool, err error) {
	args := []any{"model", model, "token_count", tokens, "duration_ms", dur.Milliseconds(), "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		l.Info("model call completed", args...)
		return
	}
	l.Error("model call failed", args...)
}

// LogRouteDecision records the outcome of a routing phase.
func (l *TurnLogger) LogRouteDecision(route string, score float64, forced bool) {
	l.Info("route selected", "route", route, "score", score, "forced", forced)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

var _ Logger = (*TurnLogger)(nil)
var _ Logger = NoOpLogger{}
