// Package observability wires the metrics registry used by a migration run.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movingbox/storemigrate/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Migration *metrics.MigrationMetrics
}

// NewMetrics creates a registry and registers every collector on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	migrationMetrics, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Migration: migrationMetrics,
	}, nil
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteSnapshot writes all metrics in text exposition format to path, for the
// node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics snapshot: %w", err)
	}
	return nil
}
