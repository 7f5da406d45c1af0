package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// replaceAttr drops or reformats the time key and names the trace level.
// A nil tz drops timestamps entirely.
func replaceAttr(tz *time.Location) func([]string, slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if tz == nil {
				return slog.Attr{}
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
			}
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}

// consoleHandler is text without timestamps; the service manager adds them.
func consoleHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr(nil)})
}

// fileHandler is one JSON object per line with RFC3339 timestamps in tz.
func fileHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	if tz == nil {
		tz = time.Local
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr(tz)})
}

// combine fans a record out to every handler.
func combine(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return slog.NewMultiHandler(handlers...)
}

// NewSlogLogger returns a text Logger on w, stdout when w is nil.
// The location is accepted for symmetry with NewJSONLogger; text output
// carries no timestamps.
func NewSlogLogger(w io.Writer, level LogLevel, _ *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl := parseLevel(string(level))
	return &slogLogger{handler: consoleHandler(w, lvl), floor: lvl}
}

// NewJSONLogger emits the file format to w. Tests that assert on log
// fields decode its output.
func NewJSONLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl := parseLevel(string(level))
	return &slogLogger{handler: fileHandler(w, lvl, tz), floor: lvl}
}
