package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains Prometheus metrics for the migration pipeline
type MigrationMetrics struct {
	registry *prometheus.Registry

	phaseRunsTotal        *prometheus.CounterVec
	phaseDuration         *prometheus.HistogramVec
	entitiesMigratedTotal *prometheus.CounterVec
	entitiesSkippedTotal  *prometheus.CounterVec
	photoBytesTotal       prometheus.Counter
	attemptsGauge         prometheus.Gauge
	errorsTotal           *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers new migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.phaseRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_phase_runs_total",
			Help: "Total number of migration phase runs by outcome",
		},
		[]string{"phase", "status"},
	)

	m.phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "migration_phase_duration_seconds",
			Help:    "Time taken by each migration phase",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount20),
		},
		[]string{"phase"},
	)

	m.entitiesMigratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_entities_migrated_total",
			Help: "Total number of legacy rows written to the target store",
		},
		[]string{"kind"},
	)

	m.entitiesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_entities_skipped_total",
			Help: "Total number of legacy rows or photos skipped, by reason",
		},
		[]string{"kind", "reason"},
	)

	m.photoBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migration_photo_bytes_total",
			Help: "Total bytes of photo content copied into the target store",
		},
	)

	m.attemptsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "migration_attempts",
			Help: "Failed schema migration attempts since the last success",
		},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_errors_total",
			Help: "Categorized errors built during a run",
		},
		[]string{"component", "category"},
	)

	m.collectors = []prometheus.Collector{
		m.phaseRunsTotal,
		m.phaseDuration,
		m.entitiesMigratedTotal,
		m.entitiesSkippedTotal,
		m.photoBytesTotal,
		m.attemptsGauge,
		m.errorsTotal,
	}
}

// Describe implements the prometheus.Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordPhase records a phase run and its duration
func (m *MigrationMetrics) RecordPhase(phase, status string, d time.Duration) {
	m.phaseRunsTotal.WithLabelValues(phase, status).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordMigrated adds migrated rows for a kind
func (m *MigrationMetrics) RecordMigrated(kind string, n int) {
	if n > 0 {
		m.entitiesMigratedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordSkipped adds skipped rows for a kind and reason
func (m *MigrationMetrics) RecordSkipped(kind, reason string, n int) {
	if n > 0 {
		m.entitiesSkippedTotal.WithLabelValues(kind, reason).Add(float64(n))
	}
}

// RecordPhotoBytes adds copied photo bytes
func (m *MigrationMetrics) RecordPhotoBytes(n int64) {
	if n > 0 {
		m.photoBytesTotal.Add(float64(n))
	}
}

// SetAttempts sets the attempt gauge
func (m *MigrationMetrics) SetAttempts(n int) {
	m.attemptsGauge.Set(float64(n))
}

// RecordError counts one categorized error
func (m *MigrationMetrics) RecordError(component, category string) {
	m.errorsTotal.WithLabelValues(component, category).Inc()
}
