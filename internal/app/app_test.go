package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movingbox/storemigrate/internal/conf"
	"github.com/movingbox/storemigrate/internal/logger"
	"github.com/movingbox/storemigrate/internal/observability/metrics"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Data: conf.DataSettings{
			LegacyPath: filepath.Join(dir, "Inventory.sqlite"),
			TargetPath: filepath.Join(dir, "inventory.db"),
			PhotosDir:  filepath.Join(dir, "photos"),
			BackupDir:  filepath.Join(dir, "backup"),
		},
		Target: conf.TargetSettings{Driver: conf.DriverSQLite},
		Migration: conf.MigrationSettings{
			MaxRetries:       3,
			PhotoConcurrency: 2,
			MinDiskMB:        64,
		},
		Canonicalize: conf.CanonicalizeSettings{TieBreak: conf.TieBreakNewest},
	}
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func TestNewOffsite_Disabled(t *testing.T) {
	target, err := NewOffsite(context.Background(), testSettings(t))
	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestNewRemoteCoordinator(t *testing.T) {
	settings := testSettings(t)

	c, err := NewRemoteCoordinator(settings, testLogger())
	require.NoError(t, err)
	assert.Nil(t, c, "a disabled probe has no coordinator")

	settings.Remote.Enabled = true
	_, err = NewRemoteCoordinator(settings, testLogger())
	require.Error(t, err, "an enabled probe needs an endpoint")

	settings.Remote.Endpoint = "https://sync.example.test/"
	_, err = NewRemoteCoordinator(settings, testLogger())
	require.Error(t, err, "an enabled probe needs a token")

	settings.Remote.Token = "secret"
	c, err = NewRemoteCoordinator(settings, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestBackgroundRemoteCoordinator_MisconfiguredProbeIsAnOutcome(t *testing.T) {
	settings := testSettings(t)
	assert.Nil(t, BackgroundRemoteCoordinator(settings, testLogger()))

	settings.Remote.Enabled = true
	settings.Remote.Endpoint = "https://sync.example.test/"
	settings.Remote.Timeout = time.Second

	c := BackgroundRemoteCoordinator(settings, testLogger())
	require.NotNil(t, c)
	out := c.Run(context.Background())
	assert.Contains(t, out.Error, "remote token is required")
	assert.Empty(t, out.Kind)
}

func TestPipelineConfig_MisconfiguredRemoteDoesNotFail(t *testing.T) {
	settings := testSettings(t)
	settings.Remote.Enabled = true
	settings.Remote.Endpoint = "https://sync.example.test/"
	settings.Remote.Grace = 50 * time.Millisecond

	cfg, err := PipelineConfig(context.Background(), settings, nil, metrics.NopRecorder{}, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, cfg.Remote)
	assert.Equal(t, 50*time.Millisecond, cfg.RemoteGrace)
}

func TestPipelineConfig(t *testing.T) {
	settings := testSettings(t)

	cfg, err := PipelineConfig(context.Background(), settings, nil, metrics.NopRecorder{}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, settings.Data.LegacyPath, cfg.Paths.Legacy)
	assert.Equal(t, settings.Data.TargetPath, cfg.Paths.Target)
	assert.Equal(t, filepath.Dir(settings.Data.LegacyPath), cfg.Paths.StateDir)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, uint64(64), cfg.MinDiskMB)
	assert.Equal(t, 2, cfg.PhotoConcurrency)
	assert.Equal(t, conf.TieBreakNewest, cfg.TieBreak)
	assert.Nil(t, cfg.Offsite)
	assert.Nil(t, cfg.Remote)
}
