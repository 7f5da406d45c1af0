// Package photos provides the photos command
package photos

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/datastore/v2/migration"
	"github.com/movingbox/storemigrate/internal/logger"
)

// Command creates and returns the photos command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Re-run the photo pass for photos still missing",
		Long:  `Photos reads the legacy photo paths recorded at migration time and copies every file that has no row yet. Files that are still missing are listed again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhotos(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runPhotos(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	log := logger.Global().Module("photos")

	paths, err := datastoreV2.ResolvePaths(settings)
	if err != nil {
		return err
	}

	mgr, err := datastoreV2.OpenTarget(settings, log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	summary, err := migration.NewPhotoMigrator(migration.PhotoMigratorConfig{
		DB:             mgr.DB(),
		PhotosDir:      paths.Photos,
		Concurrency:    settings.Migration.PhotoConcurrency,
		Rate:           settings.Migration.PhotoRate,
		MaxSkipDetails: settings.Migration.MaxSkipDetails,
		Logger:         log,
	}).Run(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "%d migrated, %d already present, %d skipped of %d\n",
		summary.Migrated, summary.AlreadyPresent, summary.Skipped, summary.Expected)
	for _, s := range summary.Skips {
		_, _ = fmt.Fprintf(out, "  missing %s %s #%d: %s\n", s.OwnerKind, s.OwnerID, s.SortOrder, s.Path)
	}
	return nil
}
