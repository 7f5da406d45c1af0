package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// gormLogger sends gorm output to a module logger. Every statement is a
// TRACE event; failed and slow statements are raised to WARN.
type gormLogger struct {
	log  Logger
	slow time.Duration
}

// NewGormLogger adapts log for gorm.Config.Logger. A zero slow threshold
// turns slow statement warnings off.
func NewGormLogger(log Logger, slow time.Duration) gormlogger.Interface {
	if log == nil {
		log = Global().Module("datastore")
	}
	return &gormLogger{log: log, slow: slow}
}

// LogMode is ignored; levels come from the logging config.
func (g *gormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return g }

func (g *gormLogger) Info(_ context.Context, format string, args ...any) {
	g.log.Debug(fmt.Sprintf(format, args...))
}

func (g *gormLogger) Warn(_ context.Context, format string, args ...any) {
	g.log.Warn(fmt.Sprintf(format, args...))
}

func (g *gormLogger) Error(_ context.Context, format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...))
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []Field{String("sql", sql), Int64("rows", rows), Duration("elapsed", elapsed)}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		g.log.Warn("statement failed", append(fields, Error(err))...)
		return
	}
	if g.slow > 0 && elapsed > g.slow {
		g.log.Warn("slow statement", fields...)
		return
	}
	g.log.Trace("statement", fields...)
}
