package v2

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/conf"
)

func TestResolvePaths(t *testing.T) {
	settings := &conf.Settings{}
	settings.Data.LegacyPath = "data/Inventory.sqlite"
	settings.Data.TargetPath = "data/inventory.db"
	settings.Data.PhotosDir = "data/photos"
	settings.Data.BackupDir = "data/legacy-backup"

	paths, err := ResolvePaths(settings)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "data", "Inventory.sqlite"), paths.Legacy)
	assert.Equal(t, filepath.Join(wd, "data", "inventory.db"), paths.Target)
	assert.Equal(t, filepath.Join(wd, "data"), paths.StateDir)
	assert.True(t, filepath.IsAbs(paths.Photos))

	settings.Target.Driver = conf.DriverMySQL
	paths, err = ResolvePaths(settings)
	require.NoError(t, err)
	assert.Empty(t, paths.Target)
}

func TestValidateTargetPathAvailable(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing target is available", func(t *testing.T) {
		p := Paths{Legacy: filepath.Join(dir, "a.sqlite"), Target: filepath.Join(dir, "new.db")}
		assert.NoError(t, p.ValidateTargetPathAvailable())
	})

	t.Run("same as legacy", func(t *testing.T) {
		p := Paths{Legacy: filepath.Join(dir, "a.sqlite"), Target: filepath.Join(dir, "a.sqlite")}
		assert.Error(t, p.ValidateTargetPathAvailable())
	})

	t.Run("foreign file collides", func(t *testing.T) {
		foreign := filepath.Join(dir, "foreign.db")
		require.NoError(t, os.WriteFile(foreign, []byte("not ours"), 0o600))
		p := Paths{Legacy: filepath.Join(dir, "a.sqlite"), Target: foreign}
		err := p.ValidateTargetPathAvailable()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a target store")
	})

	t.Run("existing target store", func(t *testing.T) {
		target := filepath.Join(dir, "ours.db")
		mgr, err := NewSQLiteManager(Config{Path: target})
		require.NoError(t, err)
		require.NoError(t, mgr.Initialize())
		require.NoError(t, mgr.Close())

		p := Paths{Legacy: filepath.Join(dir, "a.sqlite"), Target: target}
		assert.NoError(t, p.ValidateTargetPathAvailable())
	})
}
