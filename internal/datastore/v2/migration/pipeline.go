package migration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/movingbox/storemigrate/internal/archive"
	"github.com/movingbox/storemigrate/internal/datastore/legacy"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	serrors "github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
	"github.com/movingbox/storemigrate/internal/observability/metrics"
	"github.com/movingbox/storemigrate/internal/remote"
)

// DefaultRemoteGrace is how long a successful run waits for the remote probe.
const DefaultRemoteGrace = 2 * time.Second

// ErrPipelineRunning is returned by Start while a run is in flight.
var ErrPipelineRunning = errors.New("pipeline already running")

// LegacySource is an open legacy store.
type LegacySource interface {
	LegacyReader
	Close() error
}

// LegacyOpener opens the legacy store at path read-only.
type LegacyOpener func(ctx context.Context, path string) (LegacySource, error)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Paths  datastoreV2.Paths
	Target datastoreV2.Manager
	// OpenLegacy defaults to legacy.Open.
	OpenLegacy LegacyOpener

	MaxRetries       int
	MinDiskMB        uint64
	MaxSkipDetails   int
	PhotoConcurrency int
	PhotoRate        float64
	TieBreak         string
	DefaultHomeNames []string

	// Offsite, if set, receives a copy of the archived legacy store.
	Offsite archive.Target
	// Remote runs beside the local passes; nil skips the probe.
	Remote *remote.Coordinator
	// RemoteGrace bounds the wait for the probe after the local passes
	// succeed. Zero means DefaultRemoteGrace, negative means no wait.
	RemoteGrace time.Duration

	Metrics metrics.Recorder
	Logger  logger.Logger
	// FreeSpace overrides the disk usage probe.
	FreeSpace datastoreV2.FreeSpaceFunc
}

// Pipeline runs the startup sequence: resume archive, recover an
// interrupted attempt, migrate the schema, archive the legacy store, then
// the photo and canonicalization passes.
type Pipeline struct {
	cfg     PipelineConfig
	db      *gorm.DB
	state   *datastoreV2.StateManager
	metrics metrics.Recorder
	log     logger.Logger

	mu        sync.RWMutex
	running   bool
	lastError error
	report    *Report
	done      chan struct{}
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("migration")
	}
	if cfg.OpenLegacy == nil {
		cfg.OpenLegacy = func(ctx context.Context, path string) (LegacySource, error) {
			return legacy.Open(ctx, path, legacy.WithLogger(log))
		}
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	db := cfg.Target.DB()
	return &Pipeline{
		cfg:     cfg,
		db:      db,
		state:   datastoreV2.NewStateManager(db),
		metrics: rec,
		log:     log,
	}
}

// Start runs the pipeline on a background goroutine. Done is closed when it
// finishes; Report and LastError are then final.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPipelineRunning
	}
	p.running = true
	p.lastError = nil
	p.report = nil
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		report, err := p.Run(ctx)

		p.mu.Lock()
		p.running = false
		p.report = report
		p.lastError = err
		p.mu.Unlock()
	}()
	return nil
}

// Done returns a channel closed when the run started by Start finishes.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

// IsRunning returns whether a background run is in flight.
func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// LastError returns the error of the last background run.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastError
}

// Report returns the report of the last background run.
func (p *Pipeline) Report() *Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report
}

// Run executes the pipeline and returns its report. The error is non-nil
// only when the schema migration did not reach complete; archive, photo,
// canonicalization and remote problems are reported, not returned.
//
// The remote probe runs on its own goroutine. Once the local passes finish,
// Run waits at most RemoteGrace for it, and not at all after a failure.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	var probe *remote.Probe
	if p.cfg.Remote != nil {
		probe = p.cfg.Remote.Start(ctx)
	}

	err := p.runLocal(ctx, report)

	if probe != nil {
		grace := p.remoteGrace()
		if err != nil {
			grace = 0
		}
		out := probe.Collect(grace)
		status := metrics.StatusSuccess
		if out.Error != "" {
			status = metrics.StatusFailure
		}
		p.metrics.RecordPhase(metrics.PhaseRemoteProbe, status, out.Duration)
		report.Remote = &out
	}

	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
		if report.Outcome == "" {
			report.Outcome = OutcomeFailed
		}
	}
	return report, err
}

func (p *Pipeline) runLocal(ctx context.Context, report *Report) error {
	archiver := p.archiver()

	if resumed, manifest, err := archiver.ResumeArchive(ctx); err != nil {
		p.log.Error("failed to resume interrupted archive",
			logger.String("phase", metrics.PhaseArchive),
			logger.Error(err))
		report.Archive = &ArchiveReport{Resumed: true, Error: err.Error()}
	} else if resumed {
		report.Archive = newArchiveReport(manifest, true)
	}

	recovered, err := p.state.RecoverInterrupted()
	if err != nil {
		return serrors.New(err).
			Component("migration").
			Category(serrors.CategoryState).
			Context("operation", "recover_interrupted").
			Build()
	}
	if recovered {
		report.RecoveredInterrupted = true
		p.log.Warn("previous migration attempt was interrupted and counted as failed",
			logger.String("phase", metrics.PhaseSchema),
			logger.String("status", "recovered"))
	}

	flags, err := p.state.Flags()
	if err != nil {
		return err
	}
	p.metrics.SetAttempts(flags.AttemptCount)

	if flags.SchemaMigrationComplete {
		report.Outcome = OutcomeAlreadyComplete
		p.metrics.RecordPhase(metrics.PhaseSchema, metrics.StatusSkipped, 0)
	} else {
		if err := p.migrateSchema(ctx, report); err != nil {
			return err
		}
		report.Outcome = OutcomeMigrated
	}

	p.archiveLegacy(ctx, archiver, report)

	if flags, err = p.state.Flags(); err != nil {
		return err
	}
	report.Attempts = flags.AttemptCount
	photosDone := flags.PhotoMigrationComplete
	if photosDone {
		p.metrics.RecordPhase(metrics.PhasePhotos, metrics.StatusSkipped, 0)
	} else {
		photosDone = p.runPhotos(ctx, report)
	}

	// canonicalization follows a completed photo pass
	switch {
	case flags.HomeCullingComplete:
		p.metrics.RecordPhase(metrics.PhaseCanonicalize, metrics.StatusSkipped, 0)
	case !photosDone:
		p.metrics.RecordPhase(metrics.PhaseCanonicalize, metrics.StatusSkipped, 0)
		report.CanonicalizeDeferred = true
		p.log.Warn("home canonicalization deferred until photo migration completes",
			logger.String("phase", metrics.PhaseCanonicalize),
			logger.String("status", "deferred"))
	default:
		p.runCanonicalizer(ctx, report)
	}
	return nil
}

// migrateSchema runs one attempt: preflight, stage, validate, commit. Any
// failure after BeginAttempt is recorded and counts toward the retry bound.
func (p *Pipeline) migrateSchema(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.preflight(); err != nil {
		p.metrics.RecordPhase(metrics.PhaseSchema, metrics.StatusSkipped, 0)
		return serrors.New(err).
			Component("migration").
			Category(serrors.CategoryMigration).
			Context("operation", "disk_preflight").
			Build()
	}

	if err := p.state.BeginAttempt(p.cfg.MaxRetries); err != nil {
		var exhausted *datastoreV2.RetryExhaustedError
		if errors.As(err, &exhausted) {
			report.Outcome = OutcomeRetryExhausted
			report.Attempts = exhausted.Attempts
			p.log.Error("migration retry limit reached; run reset-retries after repairing the legacy store",
				logger.String("phase", metrics.PhaseSchema),
				logger.String("status", "retry_exhausted"),
				logger.Int("attempts", exhausted.Attempts),
				logger.Int("max_retries", exhausted.MaxRetries),
				logger.String("last_failure_reason", exhausted.LastFailureReason))
		}
		return serrors.New(err).
			Component("migration").
			Category(serrors.CategoryRetry).
			Context("operation", "begin_attempt").
			Build()
	}

	start := time.Now()
	p.log.Info("schema migration started",
		logger.String("phase", metrics.PhaseSchema),
		logger.String("status", "started"),
		logger.String("legacy_path", p.cfg.Paths.Legacy))

	schema, err := p.attempt(ctx)
	report.Schema = schema
	if err != nil {
		status := metrics.StatusFailure
		var verr *ValidationError
		if errors.As(err, &verr) {
			status = metrics.StatusRejected
		}
		p.metrics.RecordPhase(metrics.PhaseSchema, status, time.Since(start))

		if recErr := p.state.RecordFailure(err.Error()); recErr != nil {
			p.log.Error("failed to record migration failure", logger.Error(recErr))
		}
		if flags, flagErr := p.state.Flags(); flagErr == nil {
			p.metrics.SetAttempts(flags.AttemptCount)
			report.Attempts = flags.AttemptCount
		}
		p.log.Error("schema migration failed; legacy store left untouched",
			logger.String("phase", metrics.PhaseSchema),
			logger.String("status", "failed"),
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))

		return serrors.New(err).
			Component("migration").
			Category(serrors.CategoryMigration).
			Context("operation", "schema_migration").
			Build()
	}

	p.metrics.RecordPhase(metrics.PhaseSchema, metrics.StatusSuccess, time.Since(start))
	p.metrics.SetAttempts(0)
	for kind, n := range schema.Migrated {
		p.metrics.RecordMigrated(kind, n)
	}
	for kind, reasons := range schema.Skipped {
		for reason, n := range reasons {
			p.metrics.RecordSkipped(kind, string(reason), n)
		}
	}

	p.log.Info("schema migration committed",
		logger.String("phase", metrics.PhaseSchema),
		logger.String("status", "complete"),
		logger.Int("skipped", schema.SkippedTotal()),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// attempt stages, validates and commits. The complete transition is written
// inside the staged transaction, so data and state commit together.
func (p *Pipeline) attempt(ctx context.Context) (*SchemaReport, error) {
	src, err := p.cfg.OpenLegacy(ctx, p.cfg.Paths.Legacy)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			p.log.Warn("failed to close legacy store", logger.Error(cerr))
		}
	}()

	migrator := NewSchemaMigrator(SchemaMigratorConfig{
		DB:             p.db,
		Logger:         p.log,
		MaxSkipDetails: p.maxSkipDetails(),
	})
	st, err := migrator.Stage(ctx, src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Rollback() }()

	schema := newSchemaReport(st)

	validateStart := time.Now()
	approval, err := NewValidationGate(p.log).Evaluate(ctx, st)
	if err != nil {
		p.metrics.RecordPhase(metrics.PhaseValidate, metrics.StatusRejected, time.Since(validateStart))
		return schema, err
	}
	p.metrics.RecordPhase(metrics.PhaseValidate, metrics.StatusSuccess, time.Since(validateStart))

	err = st.commit(approval, func(tx *gorm.DB) error {
		return datastoreV2.NewStateManager(tx.WithContext(ctx)).MarkComplete()
	})
	if err != nil {
		return schema, err
	}
	return schema, nil
}

// preflight requires free space for the target store before anything is
// written. A MySQL target lives elsewhere and is not checked.
func (p *Pipeline) preflight() error {
	if p.cfg.Paths.Target == "" {
		return nil
	}
	var size int64
	if info, err := os.Stat(p.cfg.Paths.Legacy); err == nil {
		size = info.Size()
	}
	need := datastoreV2.MigrationSpaceNeeded(size, p.cfg.MinDiskMB)
	return datastoreV2.EnsureFreeSpace(p.cfg.FreeSpace, filepath.Dir(p.cfg.Paths.Target), need)
}

func (p *Pipeline) archiver() *datastoreV2.Archiver {
	return datastoreV2.NewArchiver(datastoreV2.ArchiverConfig{
		BackupDir:  p.cfg.Paths.Backup,
		StateDir:   p.cfg.Paths.StateDir,
		HeadroomMB: p.cfg.MinDiskMB,
		Offsite:    p.cfg.Offsite,
		Logger:     p.log,
		FreeSpace:  p.cfg.FreeSpace,
	})
}

// archiveLegacy moves a still-present legacy store away. It only runs once
// the state is complete; failures are retried on the next run.
func (p *Pipeline) archiveLegacy(ctx context.Context, archiver *datastoreV2.Archiver, report *Report) {
	if _, err := os.Stat(p.cfg.Paths.Legacy); err != nil {
		return
	}

	start := time.Now()
	manifest, err := archiver.Archive(ctx, p.cfg.Paths.Legacy)
	if err != nil {
		p.metrics.RecordPhase(metrics.PhaseArchive, metrics.StatusFailure, time.Since(start))
		p.log.Error("failed to archive legacy store; will retry on next start",
			logger.String("phase", metrics.PhaseArchive),
			logger.String("status", "failed"),
			logger.Error(err))
		report.Archive = &ArchiveReport{Error: err.Error()}
		return
	}
	p.metrics.RecordPhase(metrics.PhaseArchive, metrics.StatusSuccess, time.Since(start))
	report.Archive = newArchiveReport(manifest, false)
}

// runPhotos reports whether the photo pass completed.
func (p *Pipeline) runPhotos(ctx context.Context, report *Report) bool {
	start := time.Now()
	summary, err := NewPhotoMigrator(PhotoMigratorConfig{
		DB:             p.db,
		PhotosDir:      p.cfg.Paths.Photos,
		Concurrency:    p.cfg.PhotoConcurrency,
		Rate:           p.cfg.PhotoRate,
		MaxSkipDetails: p.maxSkipDetails(),
		Logger:         p.log,
	}).Run(ctx)
	if err != nil {
		p.metrics.RecordPhase(metrics.PhasePhotos, metrics.StatusFailure, time.Since(start))
		p.log.Error("photo migration failed",
			logger.String("phase", metrics.PhasePhotos),
			logger.String("status", "failed"),
			logger.Error(err))
		report.PhotoError = err.Error()
		return false
	}
	p.metrics.RecordPhase(metrics.PhasePhotos, metrics.StatusSuccess, time.Since(start))
	p.metrics.RecordMigrated(entities.KindPhoto, summary.Migrated)
	p.metrics.RecordSkipped(entities.KindPhoto, string(SkipSourceFileMissing), summary.Skipped)
	p.metrics.RecordPhotoBytes(summary.Bytes)
	if report.Schema != nil {
		summary.UnreadableLists = report.Schema.Skipped[entities.KindPhoto][SkipDecodeFailure]
	}
	report.Photos = summary
	return true
}

func (p *Pipeline) runCanonicalizer(ctx context.Context, report *Report) {
	start := time.Now()
	result, err := NewHomeCanonicalizer(HomeCanonicalizerConfig{
		DB:               p.db,
		TieBreak:         p.cfg.TieBreak,
		DefaultHomeNames: p.cfg.DefaultHomeNames,
		Logger:           p.log,
	}).Run(ctx)
	if err != nil {
		p.metrics.RecordPhase(metrics.PhaseCanonicalize, metrics.StatusFailure, time.Since(start))
		p.log.Error("home canonicalization failed",
			logger.String("phase", metrics.PhaseCanonicalize),
			logger.String("status", "failed"),
			logger.Error(err))
		report.CanonicalizeError = err.Error()
		return
	}
	p.metrics.RecordPhase(metrics.PhaseCanonicalize, metrics.StatusSuccess, time.Since(start))
	report.Canonicalize = result
}

func (p *Pipeline) remoteGrace() time.Duration {
	switch {
	case p.cfg.RemoteGrace < 0:
		return 0
	case p.cfg.RemoteGrace == 0:
		return DefaultRemoteGrace
	}
	return p.cfg.RemoteGrace
}

func (p *Pipeline) maxSkipDetails() int {
	if p.cfg.MaxSkipDetails == 0 {
		return DefaultMaxSkipDetails
	}
	return p.cfg.MaxSkipDetails
}

// IsRetryExhausted reports whether err came from the retry bound.
func IsRetryExhausted(err error) bool {
	var exhausted *datastoreV2.RetryExhaustedError
	return errors.As(err, &exhausted)
}

