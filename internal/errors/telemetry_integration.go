package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every built error while installed.
type TelemetryReporter interface {
	ReportError(ee *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu sync.RWMutex
	reporter   TelemetryReporter
)

// SetTelemetryReporter installs r; nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	reporter = r
	reporterMu.Unlock()
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

// sentryReporter sends each error once, scrubbed of paths and secrets.
type sentryReporter struct{}

func (sentryReporter) IsEnabled() bool { return true }

func (sentryReporter) ReportError(ee *EnhancedError) {
	if ee.reported.Swap(true) {
		return
	}
	sentry.CaptureEvent(sentryEvent(ee))
}

// InitSentry starts the Sentry client. An empty DSN leaves telemetry off.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		SetTelemetryReporter(nil)
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetTelemetryReporter(sentryReporter{})
	return nil
}

// FlushSentry waits up to timeout for queued events when Sentry is on.
func FlushSentry(timeout time.Duration) {
	reporterMu.RLock()
	_, on := reporter.(sentryReporter)
	reporterMu.RUnlock()
	if on {
		sentry.Flush(timeout)
	}
}

func sentryEvent(ee *EnhancedError) *sentry.Event {
	title := eventTitle(ee)
	msg := scrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))

	event := sentry.NewEvent()
	event.Message = msg
	event.Level = sentryLevel(ee.Category)
	event.Tags = map[string]string{
		"component":  ee.Component,
		"category":   string(ee.Category),
		"error_type": fmt.Sprintf("%T", ee.Err),
	}
	for key, value := range ee.Context {
		if s, ok := value.(string); ok {
			value = scrub(s)
		}
		event.Contexts[key] = sentry.Context{"value": value}
	}
	event.Fingerprint = []string{ee.Component, string(ee.Category), title}
	event.Exception = []sentry.Exception{{Type: title, Value: msg}}
	return event
}

// eventTitle groups events by component, category and the "phase" context.
func eventTitle(ee *EnhancedError) string {
	parts := []string{ee.Component, string(ee.Category)}
	if phase, ok := ee.Context["phase"].(string); ok && phase != "" {
		parts = append(parts, phase)
	}
	return strings.Join(parts, "/")
}

// sentryLevel reports recoverable phases as warnings. A failed schema
// migration or canonicalization is an error.
func sentryLevel(c ErrorCategory) sentry.Level {
	switch c {
	case CategoryNetwork, CategoryRecovery, CategoryArchive, CategoryPhotoMigration, CategoryFileIO:
		return sentry.LevelWarning
	}
	return sentry.LevelError
}

var scrubbers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(https?://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`(https?://)[^@/\s]+@`), "$1[REDACTED]@"},
	{regexp.MustCompile(`([A-Za-z0-9_\-]+):[^@/\s]+@tcp\(`), "$1:[REDACTED]@tcp("},
	{regexp.MustCompile(`(?i)(token|secret|password|access[_-]?key)[=:]\S+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`/(home|Users)/[^/\s]+`), "/$1/[USER]"},
}

// scrub removes credentials, query strings and user home directories.
func scrub(s string) string {
	for _, sc := range scrubbers {
		s = sc.re.ReplaceAllString(s, sc.repl)
	}
	return s
}
