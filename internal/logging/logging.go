package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}

func (l LogLevel) tag() string {
	return "[" + strings.ToUpper(l.String()) + "] "
}

// ParseLevel converts a level name into a LogLevel. Unknown names map to LevelInfo.
func ParseLevel(s string) LogLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	for l, name := range levelNames {
		if name == s {
			return LogLevel(l)
		}
	}
	return LevelInfo
}

var (
	level   atomic.Int32
	envOnce sync.Once
)

// levelFromEnv reads DEBUG, then LOG_LEVEL. It runs once, on first use.
func levelFromEnv() {
	envOnce.Do(func() {
		switch strings.ToLower(os.Getenv("DEBUG")) {
		case "1", "true", "yes", "on":
			level.Store(int32(LevelDebug))
		default:
			level.Store(int32(ParseLevel(os.Getenv("LOG_LEVEL"))))
		}
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	levelFromEnv()
	return LogLevel(level.Load())
}

// SetLevel overrides the level picked up from the environment.
func SetLevel(l LogLevel) {
	levelFromEnv()
	level.Store(int32(l))
}

func IsDebugEnabled() bool {
	return GetLevel() == LevelDebug
}

func emit(l LogLevel, format string, args []interface{}) {
	if l < GetLevel() {
		return
	}
	log.Printf(l.tag()+format, args...)
}

// Debug is silent unless DEBUG is truthy or LOG_LEVEL=debug.
func Debug(format string, args ...interface{}) { emit(LevelDebug, format, args) }

func Info(format string, args ...interface{}) { emit(LevelInfo, format, args) }

func Warn(format string, args ...interface{}) { emit(LevelWarn, format, args) }

func Error(format string, args ...interface{}) { emit(LevelError, format, args) }

// Fatal logs regardless of level and exits with status 1.
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}
