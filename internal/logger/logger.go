// Package logger provides a structured, module-aware logging system built on log/slog.
//
// Every migration phase logs through a module-scoped Logger so that the
// release-test tooling can filter on the "module" and "phase" attributes:
//
//	cfg := &logger.LoggingConfig{
//	    DefaultLevel: "info",
//	    Timezone:     "UTC",
//	    Console:      &logger.ConsoleOutput{Enabled: true, Level: "info"},
//	}
//
//	central, err := logger.NewCentralLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("migration")
//	log.Info("schema migration committed",
//	    logger.String("phase", "schema"),
//	    logger.Int("homes", 2))
//
// Module loggers nest: central.Module("migration").Module("photos") logs with
// module="migration.photos".
//
// Tests use a discard or buffer logger:
//
//	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
//
// Console output is human-readable text without timestamps. File output is
// JSON with RFC3339 timestamps. All implementations are safe for concurrent use.
package logger

import (
	"time"
)

// LogLevel is a severity name as it appears in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one structured attribute of a log event.
type Field struct {
	Key   string
	Value any
}

// Logger is what migration components log through. Implementations are
// passed in by the caller; components fall back to Global().Module(name).
type Logger interface {
	// Module returns a logger whose events carry module=<parent>.<name>.
	Module(name string) Logger
	// With returns a logger that adds fields to every event.
	With(fields ...Field) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

func String(key, value string) Field { return Field{key, value} }

// Int is used for row counts and attempt numbers.
func Int(key string, value int) Field { return Field{key, value} }

func Int64(key string, value int64) Field { return Field{key, value} }

// Uint64 carries free disk space in bytes.
func Uint64(key string, value uint64) Field { return Field{key, value} }

func Float64(key string, value float64) Field { return Field{key, value} }

func Bool(key string, value bool) Field { return Field{key, value} }

// Error stores err under the "error" key as its message. A nil error
// produces a nil value rather than being dropped.
func Error(err error) Field {
	if err == nil {
		return Field{errorKey, nil}
	}
	return Field{errorKey, err.Error()}
}

// Duration renders value as a string such as "1.5s".
func Duration(key string, value time.Duration) Field { return Field{key, value} }

func Time(key string, value time.Time) Field { return Field{key, value} }

// Any logs value through slog.Any. Slices of IDs are the common case.
func Any(key string, value any) Field { return Field{key, value} }

const (
	errorKey  = "error"
	moduleKey = "module"
)
