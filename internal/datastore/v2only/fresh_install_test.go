package v2only

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/conf"
	v2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

func sqliteSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Target.Driver = conf.DriverSQLite
	settings.Data.LegacyPath = filepath.Join(dir, "Inventory.sqlite")
	settings.Data.TargetPath = filepath.Join(dir, "nested", "inventory.db")
	return settings
}

func TestDetectFreshInstall(t *testing.T) {
	t.Run("nothing exists", func(t *testing.T) {
		settings := sqliteSettings(t)
		fresh, err := DetectFreshInstall(settings)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("legacy store exists", func(t *testing.T) {
		settings := sqliteSettings(t)
		require.NoError(t, os.WriteFile(settings.Data.LegacyPath, []byte("x"), 0o600))
		fresh, err := DetectFreshInstall(settings)
		require.NoError(t, err)
		assert.False(t, fresh)
	})

	for _, legacyPresent := range []bool{true, false} {
		name := "failed target, legacy absent"
		if legacyPresent {
			name = "failed target, legacy present"
		}
		t.Run(name, func(t *testing.T) {
			settings := sqliteSettings(t)
			writeFailedTarget(t, settings)
			if legacyPresent {
				require.NoError(t, os.WriteFile(settings.Data.LegacyPath, []byte("x"), 0o600))
			}

			fresh, err := DetectFreshInstall(settings)
			require.NoError(t, err)
			assert.False(t, fresh, "a failed migration is never a fresh install")

			_, err = InitializeFreshInstall(settings, nil)
			require.ErrorIs(t, err, ErrNotFreshInstall)
		})
	}

	t.Run("corrupt target is an error", func(t *testing.T) {
		settings := sqliteSettings(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(settings.Data.TargetPath), 0o750))
		require.NoError(t, os.WriteFile(settings.Data.TargetPath, []byte("not a database at all, just text"), 0o600))
		fresh, err := DetectFreshInstall(settings)
		require.Error(t, err)
		assert.ErrorIs(t, err, v2.ErrTargetCorrupted)
		assert.False(t, fresh)
	})
}

func TestInitializeFreshInstall_SQLite(t *testing.T) {
	settings := sqliteSettings(t)
	settings.Canonicalize.DefaultHomeNames = []string{"Casa"}

	mgr, err := InitializeFreshInstall(settings, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	_, err = os.Stat(settings.Data.TargetPath)
	require.NoError(t, err, "target store should exist at the configured path")

	var homes []entities.Home
	require.NoError(t, mgr.DB().Find(&homes).Error)
	require.Len(t, homes, 1)
	assert.Equal(t, "Casa", homes[0].Name)
	assert.True(t, homes[0].IsPrimary)

	flags, err := v2.NewStateManager(mgr.DB()).Flags()
	require.NoError(t, err)
	assert.Equal(t, entities.MigrationStatusComplete, flags.State)
	assert.True(t, flags.SchemaMigrationComplete)
	assert.True(t, flags.PhotoMigrationComplete)
	assert.True(t, flags.HomeCullingComplete)
	assert.Zero(t, flags.AttemptCount)
}

func TestInitializeFreshInstall_RefusesWhenLegacyExists(t *testing.T) {
	settings := sqliteSettings(t)
	require.NoError(t, os.WriteFile(settings.Data.LegacyPath, []byte("x"), 0o600))

	mgr, err := InitializeFreshInstall(settings, nil)
	require.ErrorIs(t, err, ErrNotFreshInstall)
	assert.Nil(t, mgr)

	_, statErr := os.Stat(settings.Data.TargetPath)
	assert.True(t, os.IsNotExist(statErr), "no target store may be created")
}

func TestInitializeFreshInstall_SecondRunRefuses(t *testing.T) {
	settings := sqliteSettings(t)

	mgr, err := InitializeFreshInstall(settings, nil)
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	_, err = InitializeFreshInstall(settings, nil)
	require.ErrorIs(t, err, ErrNotFreshInstall)
}

// writeFailedTarget creates a target store whose only migration attempt
// failed, leaving no rows behind.
func writeFailedTarget(t *testing.T, settings *conf.Settings) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(settings.Data.TargetPath), 0o750))
	mgr, err := v2.OpenTarget(settings, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))
	require.NoError(t, err)
	defer func() { require.NoError(t, mgr.Close()) }()

	state := v2.NewStateManager(mgr.DB())
	require.NoError(t, state.BeginAttempt(3))
	require.NoError(t, state.RecordFailure("implausible empty result"))

	var homes int64
	require.NoError(t, mgr.DB().Model(&entities.Home{}).Count(&homes).Error)
	require.Zero(t, homes)
}
