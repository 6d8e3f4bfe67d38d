package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
)

const (
	APP        = "APP"
	BACKEND    = "BACKEND"
	CONFIG     = "CONFIG"
	ENGINE     = "ENGINE"
	HANDLER    = "HANDLER"
	INGEST     = "INGEST"
	MIDDLEWARE = "MIDDLEWARE"
	REDIS      = "REDIS"
	RESYNC     = "RESYNC"
	SNAPSHOT   = "SNAPSHOT"
	TRANSPORT  = "TRANSPORT"
)

var (
	mu           sync.RWMutex
	currentLevel = getLogLevel()
	out          = newLogger(os.Stdout, os.Getenv("LOG_PRETTY") == "true")
)

func getLogLevel() LogLevel {
	level := strings.ToUpper(os.Getenv("LOG_LEVEL"))
	switch level {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func newLogger(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetOutput redirects all namespaced log output. Intended for tests and for
// the CLI when the transcript printer owns stdout.
func SetOutput(w io.Writer, pretty bool) {
	mu.Lock()
	defer mu.Unlock()
	out = newLogger(w, pretty)
}

// SetLevel overrides the level parsed from LOG_LEVEL.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// Logger returns the underlying zerolog logger scoped to a namespace, for
// callers that want structured fields.
func Logger(namespace string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return out.With().Str("ns", namespace).Logger()
}

func emit(level LogLevel, ev func(zerolog.Logger) *zerolog.Event, namespace, format string, v ...interface{}) {
	mu.RLock()
	enabled := currentLevel >= level
	l := out
	mu.RUnlock()
	if !enabled {
		return
	}
	ev(l).Str("ns", namespace).Msgf(format, v...)
}

func Debug(namespace, format string, v ...interface{}) {
	emit(DEBUG, func(l zerolog.Logger) *zerolog.Event { return l.Debug() }, namespace, format, v...)
}

func Info(namespace, format string, v ...interface{}) {
	emit(INFO, func(l zerolog.Logger) *zerolog.Event { return l.Info() }, namespace, format, v...)
}

func Warn(namespace, format string, v ...interface{}) {
	emit(WARN, func(l zerolog.Logger) *zerolog.Event { return l.Warn() }, namespace, format, v...)
}

func Error(namespace, format string, v ...interface{}) {
	emit(ERROR, func(l zerolog.Logger) *zerolog.Event { return l.Error() }, namespace, format, v...)
}

// Fatal logs at error severity with a fatal marker but does not exit; the
// caller decides whether the process stops.
func Fatal(namespace, format string, v ...interface{}) {
	emit(ERROR, func(l zerolog.Logger) *zerolog.Event { return l.WithLevel(zerolog.FatalLevel) }, namespace, format, v...)
}
