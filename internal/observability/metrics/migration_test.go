package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*MigrationMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m, err := NewMigrationMetrics(registry)
	require.NoError(t, err)
	return m, registry
}

func TestMigrationMetrics_Counters(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	m.RecordMigrated("item", 6)
	m.RecordMigrated("item", 0)
	m.RecordSkipped("item", "decode_failure", 2)
	m.RecordSkipped("photo", "source_file_missing", 1)
	m.RecordPhotoBytes(2048)
	m.RecordPhotoBytes(-1)
	m.SetAttempts(2)
	m.RecordError("archive", "archive")
	m.RecordError("archive", "archive")

	assert.InDelta(t, 6, testutil.ToFloat64(m.entitiesMigratedTotal.WithLabelValues("item")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.entitiesSkippedTotal.WithLabelValues("item", "decode_failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.entitiesSkippedTotal.WithLabelValues("photo", "source_file_missing")), 0)
	assert.InDelta(t, 2048, testutil.ToFloat64(m.photoBytesTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.attemptsGauge), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.errorsTotal.WithLabelValues("archive", "archive")), 0)
}

func TestMigrationMetrics_RecordPhase(t *testing.T) {
	t.Parallel()
	m, registry := newTestMetrics(t)

	m.RecordPhase(PhaseSchema, StatusSuccess, 250*time.Millisecond)
	m.RecordPhase(PhaseValidate, StatusRejected, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.phaseRunsTotal.WithLabelValues(PhaseSchema, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.phaseRunsTotal.WithLabelValues(PhaseValidate, StatusRejected)), 0)

	families, err := registry.Gather()
	require.NoError(t, err)

	var hist *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "migration_phase_duration_seconds" {
			hist = f
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, dto.MetricType_HISTOGRAM, hist.GetType())
	assert.Len(t, hist.GetMetric(), 2)
	for _, metric := range hist.GetMetric() {
		assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
	}
}

func TestNewMigrationMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()

	_, err := NewMigrationMetrics(registry)
	require.NoError(t, err)
	_, err = NewMigrationMetrics(registry)
	assert.Error(t, err)
}
