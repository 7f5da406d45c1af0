// Package app wires settings into the components a command runs.
package app

import (
	"context"
	"fmt"

	"github.com/movingbox/storemigrate/internal/archive"
	"github.com/movingbox/storemigrate/internal/buildinfo"
	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration"
	"github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
	"github.com/movingbox/storemigrate/internal/observability/metrics"
	"github.com/movingbox/storemigrate/internal/remote"
)

// SetupLogging installs the central logger configured in settings and
// returns it.
func SetupLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
	}
	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}

// SetupTelemetry enables Sentry reporting when configured.
func SetupTelemetry(settings *conf.Settings, bi *buildinfo.Context) error {
	if !settings.Telemetry.Enabled {
		return nil
	}
	return errors.InitSentry(settings.Telemetry.DSN, bi.Release())
}

// NewOffsite returns the configured offsite archive target, or nil when
// offsite copies are disabled.
func NewOffsite(ctx context.Context, settings *conf.Settings) (archive.Target, error) {
	off := settings.Archive.Offsite
	if !off.Enabled {
		return nil, nil
	}
	target, err := archive.NewS3Target(ctx, archive.S3Config{
		Bucket:          off.S3.Bucket,
		Region:          off.S3.Region,
		Endpoint:        off.S3.Endpoint,
		AccessKeyID:     off.S3.AccessKeyID,
		SecretAccessKey: off.S3.SecretAccessKey,
		PathStyle:       off.S3.PathStyle,
		Prefix:          off.S3.Prefix,
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// NewRemoteCoordinator returns the stranded-state probe, or nil when it is
// disabled.
func NewRemoteCoordinator(settings *conf.Settings, log logger.Logger) (*remote.Coordinator, error) {
	r := settings.Remote
	if !r.Enabled {
		return nil, nil
	}
	prober, err := remote.NewHTTPProber(remote.HTTPProberConfig{
		Endpoint: r.Endpoint,
		Token:    r.Token,
		Timeout:  r.Timeout,
		CacheTTL: r.CacheTTL,
		Logger:   log.Module("remote"),
	})
	if err != nil {
		return nil, err
	}
	return remote.NewCoordinator(prober, log.Module("remote")), nil
}

// BackgroundRemoteCoordinator is NewRemoteCoordinator for runs where the
// probe must not affect local work. A configuration error is logged and
// becomes the outcome of the probe instead of failing the caller.
func BackgroundRemoteCoordinator(settings *conf.Settings, log logger.Logger) *remote.Coordinator {
	coordinator, err := NewRemoteCoordinator(settings, log)
	if err == nil {
		return coordinator
	}
	log.Warn("remote probe is misconfigured; continuing without it",
		logger.String("phase", metrics.PhaseRemoteProbe),
		logger.Error(err))
	return remote.NewCoordinator(remote.UnavailableProber{Err: err}, log.Module("remote"))
}

// PipelineConfig builds the pipeline configuration for an opened target.
func PipelineConfig(ctx context.Context, settings *conf.Settings, target datastoreV2.Manager, rec metrics.Recorder, log logger.Logger) (migration.PipelineConfig, error) {
	paths, err := datastoreV2.ResolvePaths(settings)
	if err != nil {
		return migration.PipelineConfig{}, err
	}
	offsite, err := NewOffsite(ctx, settings)
	if err != nil {
		return migration.PipelineConfig{}, err
	}
	coordinator := BackgroundRemoteCoordinator(settings, log)

	m := settings.Migration
	return migration.PipelineConfig{
		Paths:            paths,
		Target:           target,
		MaxRetries:       m.MaxRetries,
		MinDiskMB:        m.MinDiskMB,
		MaxSkipDetails:   m.MaxSkipDetails,
		PhotoConcurrency: m.PhotoConcurrency,
		PhotoRate:        m.PhotoRate,
		RemoteGrace:      settings.Remote.Grace,
		TieBreak:         settings.Canonicalize.TieBreak,
		DefaultHomeNames: settings.Canonicalize.DefaultHomeNames,
		Offsite:          offsite,
		Remote:           coordinator,
		Metrics:          rec,
		Logger:           log,
	}, nil
}
