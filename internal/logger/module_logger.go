package logger

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"
)

// levelTrace sits below slog.LevelDebug; only gorm statements use it.
const levelTrace = slog.Level(-8)

// slogLogger is the Logger every constructor in this package returns.
type slogLogger struct {
	handler slog.Handler
	floor   slog.Level
	module  string
	fields  []Field
}

func (l *slogLogger) Module(name string) Logger {
	next := *l
	next.fields = slices.Clone(l.fields)
	if l.module == "" {
		next.module = name
	} else {
		next.module = l.module + "." + name
	}
	return &next
}

func (l *slogLogger) With(fields ...Field) Logger {
	next := *l
	next.fields = slices.Concat(l.fields, fields)
	return &next
}

func (l *slogLogger) Trace(msg string, fields ...Field) { l.emit(levelTrace, msg, fields) }
func (l *slogLogger) Debug(msg string, fields ...Field) { l.emit(slog.LevelDebug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.emit(slog.LevelInfo, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.emit(slog.LevelWarn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.emit(slog.LevelError, msg, fields) }

func (l *slogLogger) emit(level slog.Level, msg string, fields []Field) {
	if l == nil || level < l.floor {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(l.fields)+len(fields))
	if l.module != "" {
		attrs = append(attrs, slog.String(moduleKey, l.module))
	}
	for _, f := range l.fields {
		attrs = append(attrs, toAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	ctx := context.Background()
	if l.handler.Enabled(ctx, level) {
		_ = l.handler.Handle(ctx, r)
	}
}

// toAttr scrubs secrets and maps the value onto the matching slog kind.
// Floats keep three decimals, durations are rounded to milliseconds.
func toAttr(f Field) slog.Attr {
	f = redactField(f)
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		if v >= time.Millisecond {
			v = v.Round(time.Millisecond)
		}
		return slog.String(f.Key, v.String())
	}
	return slog.Any(f.Key, f.Value)
}

// parseLevel maps a configured level name onto slog. Unknown names mean info.
func parseLevel(name string) slog.Level {
	switch LogLevel(name) {
	case LogLevelTrace:
		return levelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
