package migration

import (
	"context"
	"errors"
	"io"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/datastore/legacy"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration/testutil"
	"github.com/movingbox/storemigrate/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

// testLogger returns a silent logger for tests.
func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// setupTarget creates an initialized SQLite target store in a temp dir.
func setupTarget(t *testing.T) *datastoreV2.SQLiteManager {
	t.Helper()
	mgr, err := datastoreV2.NewSQLiteManager(datastoreV2.Config{
		Path:   filepath.Join(t.TempDir(), "inventory.db"),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Initialize())
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// openLegacy opens a seeded legacy store read-only.
func openLegacy(t *testing.T, path string) *legacy.Store {
	t.Helper()
	store, err := legacy.Open(context.Background(), path, legacy.WithLogger(testLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// countRows counts committed rows per kind.
func countRows(t *testing.T, db *gorm.DB) map[string]int {
	t.Helper()
	counts := make(map[string]int, len(entities.CountedKinds))
	for _, kind := range entities.CountedKinds {
		n, err := countKind(db, kind)
		require.NoError(t, err)
		counts[kind] = n
	}
	return counts
}

// commitLegacy runs one schema migration attempt straight through the
// migrator and gate, the way the pipeline does, and returns the target.
func commitLegacy(t *testing.T, s *testutil.LegacySeeder) (*datastoreV2.SQLiteManager, *StagedTransaction) {
	t.Helper()
	s.Close()
	mgr := setupTarget(t)
	store := openLegacy(t, s.Path())

	require.NoError(t, datastoreV2.NewStateManager(mgr.DB()).BeginAttempt(0))

	st, err := NewSchemaMigrator(SchemaMigratorConfig{DB: mgr.DB(), Logger: testLogger()}).Stage(context.Background(), store)
	require.NoError(t, err)
	approval, err := NewValidationGate(testLogger()).Evaluate(context.Background(), st)
	require.NoError(t, err)
	require.NoError(t, st.commit(approval, func(tx *gorm.DB) error {
		return datastoreV2.NewStateManager(tx).MarkComplete()
	}))
	return mgr, st
}

var errInjected = errors.New("injected read failure")

// faultyReader fails the item enumeration after a number of rows.
type faultyReader struct {
	*legacy.Store
	failAfter int
}

func (f faultyReader) Items(ctx context.Context) iter.Seq2[legacy.Item, error] {
	return func(yield func(legacy.Item, error) bool) {
		n := 0
		for it, err := range f.Store.Items(ctx) {
			if n == f.failAfter {
				yield(legacy.Item{}, errInjected)
				return
			}
			if !yield(it, err) {
				return
			}
			n++
		}
		if n == f.failAfter {
			yield(legacy.Item{}, errInjected)
		}
	}
}
