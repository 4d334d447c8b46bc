// Package logging provides the structured text logger used across the
// service. Every component gets its own *Logger so that log lines can be
// filtered by component without touching call sites.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

// ComponentLoggerConfig controls how a component's logger renders lines.
type ComponentLoggerConfig struct {
	Component string
	Category  string // e.g. "dispatch", "memory", "auth" - groups components in log greps
	MinLevel  Level
	Output    io.Writer
}

// Logger writes structured text log lines of the form:
//
//	TIMESTAMP [LEVEL] [CATEGORY] [COMPONENT] [log_id=...] file.go:line - message
type Logger struct {
	mu       sync.Mutex
	cfg      ComponentLoggerConfig
	logID    string
	fields   []string
	disabled bool
}

// NewComponentLogger returns a logger for component, logging at LevelInfo
// and above to stderr. Use NewComponentLoggerWithConfig for finer control.
func NewComponentLogger(component string) *Logger {
	return NewComponentLoggerWithConfig(ComponentLoggerConfig{
		Component: component,
		Category:  "general",
		MinLevel:  LevelInfo,
		Output:    os.Stderr,
	})
}

// NewComponentLoggerWithConfig returns a logger configured per cfg. A nil
// Output defaults to os.Stderr.
func NewComponentLoggerWithConfig(cfg ComponentLoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Category == "" {
		cfg.Category = "general"
	}
	return &Logger{cfg: cfg}
}

// OrNop returns l if non-nil, otherwise a logger that discards all output.
// Lets call sites accept an optional *Logger without nil-checking at every
// call.
func OrNop(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return &Logger{disabled: true}
}

// WithLogID returns a copy of l that stamps logID on every subsequent line,
// for correlating a single request's log lines.
func (l *Logger) WithLogID(logID string) *Logger {
	clone := *l
	clone.logID = logID
	return &clone
}

// With returns a copy of l carrying an additional key=value field rendered
// after the message.
func (l *Logger) With(key string, value any) *Logger {
	clone := *l
	clone.fields = append(append([]string{}, l.fields...), fmt.Sprintf("%s=%v", key, value))
	return &clone
}

func (l *Logger) log(level Level, skip int, format string, args ...any) {
	if l.disabled || level < l.cfg.MinLevel {
		return
	}
	_, file, line, ok := runtime.Caller(skip)
	loc := "???:0"
	if ok {
		if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
			file = file[idx+1:]
		}
		loc = fmt.Sprintf("%s:%d", file, line)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("] [")
	b.WriteString(l.cfg.Category)
	b.WriteString("] [")
	b.WriteString(l.cfg.Component)
	b.WriteString("]")
	if l.logID != "" {
		b.WriteString(" [log_id=")
		b.WriteString(l.logID)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(loc)
	b.WriteString(" - ")
	b.WriteString(fmt.Sprintf(format, args...))
	for _, f := range l.fields {
		b.WriteString(" ")
		b.WriteString(f)
	}
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.cfg.Output, b.String())
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, 3, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, 3, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, 3, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, 3, format, args...) }

// LatencyLogger times an operation and emits a single Info line on Stop
// naming the elapsed duration, for hot-path timing without scattering
// time.Now() calls across call sites.
type LatencyLogger struct {
	logger    *Logger
	operation string
	start     time.Time
}

// NewLatencyLogger starts timing operation and returns a LatencyLogger.
// Call Stop when the operation completes.
func NewLatencyLogger(logger *Logger, operation string) *LatencyLogger {
	return &LatencyLogger{logger: OrNop(logger), operation: operation, start: time.Now()}
}

// Stop logs the elapsed time since NewLatencyLogger was called.
func (t *LatencyLogger) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.log(LevelInfo, 3, "%s completed in %s", t.operation, elapsed)
	return elapsed
}
