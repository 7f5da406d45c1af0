// Package metrics provides Prometheus metrics for the migration pipeline.
package metrics

import "time"

// Recorder is what pipeline components depend on, so tests can pass NopRecorder.
type Recorder interface {
	// RecordPhase records one run of a phase with its outcome and duration.
	RecordPhase(phase, status string, d time.Duration)

	// RecordMigrated adds n migrated rows of an entity kind.
	RecordMigrated(kind string, n int)

	// RecordSkipped adds n skipped rows of an entity kind with the skip reason.
	RecordSkipped(kind, reason string, n int)

	// RecordPhotoBytes adds bytes copied into photo tables.
	RecordPhotoBytes(n int64)

	// SetAttempts mirrors the persisted attempt counter.
	SetAttempts(n int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordPhase(string, string, time.Duration) {}
func (NopRecorder) RecordMigrated(string, int)                {}
func (NopRecorder) RecordSkipped(string, string, int)         {}
func (NopRecorder) RecordPhotoBytes(int64)                    {}
func (NopRecorder) SetAttempts(int)                           {}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = (*MigrationMetrics)(nil)
)
