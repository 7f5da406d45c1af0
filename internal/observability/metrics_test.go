package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/observability/metrics"
)

func TestWriteSnapshot(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Migration.RecordPhase(metrics.PhaseSchema, metrics.StatusSuccess, time.Second)
	m.Migration.RecordMigrated("home", 2)

	path := filepath.Join(t.TempDir(), "storemigrate.prom")
	require.NoError(t, m.WriteSnapshot(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `migration_phase_runs_total{phase="schema",status="success"} 1`)
	assert.Contains(t, out, `migration_entities_migrated_total{kind="home"} 2`)

	assert.NoError(t, m.WriteSnapshot(""))
}
