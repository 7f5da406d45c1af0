package errors

import (
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	enabled bool
	got     []*EnhancedError
}

func (s *stubReporter) ReportError(ee *EnhancedError) { s.got = append(s.got, ee) }
func (s *stubReporter) IsEnabled() bool               { return s.enabled }

// These tests mutate package globals and must not run in parallel.

func TestBuild_Defaults(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuild_ExplicitFieldsKept(t *testing.T) {
	SetTelemetryReporter(nil)
	ClearErrorHooks()

	base := fmt.Errorf("count mismatch")
	ee := New(base).
		Component("migration").
		Category(CategoryMigration).
		Context("phase", "validate").
		Context("kind", "item").
		Build()

	assert.Equal(t, "migration", ee.Component)
	ctx := ee.GetContext()
	assert.Equal(t, "validate", ctx["phase"])
	ctx["phase"] = "changed"
	assert.Equal(t, "validate", ee.Context["phase"])

	assert.ErrorIs(t, ee, base)
	wrapped := fmt.Errorf("wrapped: %w", ee)
	assert.True(t, IsCategory(wrapped, CategoryMigration))
	assert.False(t, IsCategory(wrapped, CategoryArchive))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryMigration}))
}

func TestBuild_InheritsCategory(t *testing.T) {
	SetTelemetryReporter(nil)

	inner := New(fmt.Errorf("rename failed")).Category(CategoryArchive).Build()
	outer := New(fmt.Errorf("archive legacy store: %w", inner)).Build()

	assert.Equal(t, CategoryArchive, outer.Category)
}

func TestBuild_HooksAndReporter(t *testing.T) {
	r := &stubReporter{enabled: true}
	SetTelemetryReporter(r)
	t.Cleanup(func() {
		SetTelemetryReporter(nil)
		ClearErrorHooks()
	})

	var seen []ErrorCategory
	AddErrorHook(func(ee *EnhancedError) { seen = append(seen, ee.Category) })
	AddErrorHook(nil)

	New(fmt.Errorf("boom")).Category(CategoryNetwork).Build()
	New(fmt.Errorf("bad")).Category(CategoryValidation).Build()

	assert.Equal(t, []ErrorCategory{CategoryNetwork, CategoryValidation}, seen)
	require.Len(t, r.got, 2)

	SetTelemetryReporter(&stubReporter{enabled: false})
	ClearErrorHooks()
	New(fmt.Errorf("quiet")).Build()
	assert.Len(t, seen, 2)
}

func TestComponentFor_LongestFragmentWins(t *testing.T) {
	const mod = "github.com/movingbox/storemigrate/"
	assert.Equal(t, "migration", componentFor(mod+"internal/datastore/v2/migration.(*Pipeline).Run"))
	assert.Equal(t, "target-store", componentFor(mod+"internal/datastore/v2.(*SQLiteManager).Initialize"))
	assert.Equal(t, "fresh-install", componentFor(mod+"internal/datastore/v2only.DetectFreshInstall"))
	assert.Equal(t, "legacy-store", componentFor(mod+"internal/datastore/legacy.(*Store).Homes"))
	assert.Equal(t, ComponentUnknown, componentFor("main.main"))
}

func TestScrub(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"query", "GET https://api.example.com/probe?token=abc failed", "GET https://api.example.com/probe?[REDACTED] failed"},
		{"url user", "GET https://svc:pw@api.example.com/probe", "GET https://[REDACTED]@api.example.com/probe"},
		{"dsn", "dial root:hunter2@tcp(db:3306)/x", "dial root:[REDACTED]@tcp(db:3306)/x"},
		{"secret pair", "bad token=abcdef", "bad token=[REDACTED]"},
		{"home dir", "open /home/alice/legacy.sqlite", "open /home/[USER]/legacy.sqlite"},
		{"plain", "count mismatch", "count mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scrub(tt.in))
		})
	}
}

func TestSentryEvent(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("rename /home/bob/store.sqlite: cross-device link")).
		Component("archive").
		Category(CategoryArchive).
		Context("phase", "archive").
		Context("path", "/home/bob/store.sqlite").
		Build()

	event := sentryEvent(ee)

	assert.Equal(t, sentry.LevelWarning, event.Level)
	assert.Equal(t, "archive", event.Tags["component"])
	assert.Equal(t, "archive", event.Tags["category"])
	assert.NotContains(t, event.Message, "bob")
	assert.Equal(t, sentry.Context{"value": "/home/[USER]/store.sqlite"}, event.Contexts["path"])
	require.Len(t, event.Exception, 1)
	assert.Equal(t, "archive/archive/archive", event.Exception[0].Type)
	assert.Equal(t, []string{"archive", "archive", "archive/archive/archive"}, event.Fingerprint)

	migration := New(fmt.Errorf("x")).Component("migration").Category(CategoryMigration).Build()
	assert.Equal(t, sentry.LevelError, sentryEvent(migration).Level)
	assert.Equal(t, "migration/migration", eventTitle(migration))
}
