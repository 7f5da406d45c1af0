// Package run provides the run command, the full startup migration pipeline.
package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/movingbox/storemigrate/internal/app"
	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration"
	"github.com/movingbox/storemigrate/internal/datastore/v2only"
	"github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
	"github.com/movingbox/storemigrate/internal/observability"
	"github.com/movingbox/storemigrate/internal/remote"
)

// Command creates and returns the run command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Migrate, archive and canonicalize the legacy store",
		Long: `Run performs the startup sequence: it resumes an interrupted archive,
seeds a fresh install when neither store exists, migrates the legacy store
into the target store behind the validation gate, archives the legacy store,
migrates photos and settles the primary home. The remote stranded-state
probe runs alongside when enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runPipeline(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	log := logger.Global().Module("migration")

	obs, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	errors.AddErrorHook(func(ee *errors.EnhancedError) {
		obs.Migration.RecordError(ee.Component, string(ee.Category))
	})
	defer errors.ClearErrorHooks()
	defer func() {
		if err := obs.WriteSnapshot(settings.Metrics.Path); err != nil {
			log.Warn("failed to write metrics snapshot", logger.Error(err))
		}
	}()

	paths, err := datastoreV2.ResolvePaths(settings)
	if err != nil {
		return err
	}
	if err := paths.ValidateTargetPathAvailable(); err != nil {
		return err
	}

	fresh, err := v2only.DetectFreshInstall(settings)
	if err != nil {
		return err
	}
	if fresh {
		return freshInstall(ctx, settings, out, log)
	}

	mgr, err := datastoreV2.OpenTarget(settings, log.Module("datastore"))
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	cfg, err := app.PipelineConfig(ctx, settings, mgr, obs.Migration, log)
	if err != nil {
		return err
	}

	report, runErr := migration.NewPipeline(cfg).Run(ctx)
	return finish(report, runErr, settings, out, log)
}

// freshInstall seeds an empty target store. The remote probe still runs,
// since a fresh install is where stranded remote state shows up, but it
// never holds up or fails the install.
func freshInstall(ctx context.Context, settings *conf.Settings, out io.Writer, log logger.Logger) error {
	report := &migration.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	var probe *remote.Probe
	if coordinator := app.BackgroundRemoteCoordinator(settings, log); coordinator != nil {
		probe = coordinator.Start(ctx)
	}

	mgr, err := v2only.InitializeFreshInstall(settings, log)
	grace := settings.Remote.Grace
	if grace == 0 {
		grace = migration.DefaultRemoteGrace
	}
	if err != nil {
		grace = 0
	}
	if probe != nil {
		outcome := probe.Collect(grace)
		report.Remote = &outcome
	}
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()
	report.Outcome = migration.OutcomeFreshInstall
	report.FinishedAt = time.Now().UTC()

	return finish(report, nil, settings, out, log)
}

// finish prints and stores the report and passes runErr through.
func finish(report *migration.Report, runErr error, settings *conf.Settings, out io.Writer, log logger.Logger) error {
	if report != nil {
		if err := report.Render(out); err != nil {
			log.Warn("failed to print run summary", logger.Error(err))
		}
		if err := report.WriteFile(settings.Migration.ReportPath); err != nil {
			log.Warn("failed to write run report",
				logger.String("path", settings.Migration.ReportPath),
				logger.Error(err))
		}
	}
	if runErr != nil {
		if migration.IsRetryExhausted(runErr) {
			return fmt.Errorf("%w; repair the legacy store, then run reset-retries", runErr)
		}
		return runErr
	}
	return nil
}
