package logging

import (
	"strings"
	"sync"
)

// LoggerFactory caches component loggers so repeated calls for the same
// component share configuration and don't reallocate.
type LoggerFactory struct {
	mu      sync.Mutex
	minLvl  Level
	loggers map[string]*Logger
}

// NewLoggerFactory returns a factory producing loggers at minLvl and above.
func NewLoggerFactory(minLvl Level) *LoggerFactory {
	return &LoggerFactory{minLvl: minLvl, loggers: make(map[string]*Logger)}
}

// Get returns the cached logger for component/category, creating it on
// first use.
func (f *LoggerFactory) Get(component, category string) *Logger {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := category + "/" + component
	if l, ok := f.loggers[key]; ok {
		return l
	}
	l := NewComponentLoggerWithConfig(ComponentLoggerConfig{
		Component: component,
		Category:  category,
		MinLevel:  f.minLvl,
	})
	f.loggers[key] = l
	return l
}

var defaultFactory = NewLoggerFactory(LevelInfo)

// Convenience loggers for the service's main components, mirroring the
// per-subsystem singletons used throughout the codebase.
var (
	DispatchLogger      = defaultFactory.Get("dispatch", "core")
	MemoryLogger        = defaultFactory.Get("memory", "core")
	AuthLogger          = defaultFactory.Get("auth", "identity")
	PersonaLogger       = defaultFactory.Get("persona", "core")
	PluginLogger        = defaultFactory.Get("plugin", "host")
	ObservabilityLogger = defaultFactory.Get("observability", "core")
	HTTPLogger          = defaultFactory.Get("http", "delivery")
)

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// Level, defaulting to LevelInfo for anything else.
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

// SetMinLevel updates the minimum level of every component logger minted so
// far (and the default for any minted later), used by bootstrap once the
// observability config is loaded.
func SetMinLevel(level Level) {
	defaultFactory.mu.Lock()
	defer defaultFactory.mu.Unlock()
	defaultFactory.minLvl = level
	for _, l := range defaultFactory.loggers {
		l.cfg.MinLevel = level
	}
}

// LogInfo logs an info-level line against the dispatch logger, for call
// sites that don't hold a component-specific logger.
func LogInfo(format string, args ...any) { DispatchLogger.log(LevelInfo, 3, format, args...) }

// LogError logs an error-level line against the dispatch logger.
func LogError(format string, args ...any) { DispatchLogger.log(LevelError, 3, format, args...) }
