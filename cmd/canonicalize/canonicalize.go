// Package canonicalize provides the canonicalize command
package canonicalize

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

// Command creates and returns the canonicalize command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonicalize",
		Short: "Re-run home canonicalization on the target store",
		Long:  `Canonicalize picks the primary home, deletes unused placeholder homes and assigns every location and item a home. Running it again changes nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanonicalize(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runCanonicalize(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	log := logger.Global().Module("canonicalize")

	mgr, err := datastoreV2.OpenTarget(settings, log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	result, err := migration.NewHomeCanonicalizer(migration.HomeCanonicalizerConfig{
		DB:               mgr.DB(),
		TieBreak:         settings.Canonicalize.TieBreak,
		DefaultHomeNames: settings.Canonicalize.DefaultHomeNames,
		Logger:           log,
	}).Run(ctx)
	if err != nil {
		return err
	}

	if !result.Changed() {
		_, err = fmt.Fprintf(out, "canonical home %s, nothing to change\n", result.CanonicalHomeID)
		return err
	}
	_, err = fmt.Fprintf(out, "canonical home %s: %d phantoms deleted, %d locations reassigned, %d items inherited, %d items reassigned\n",
		result.CanonicalHomeID, len(result.PhantomsDeleted), result.LocationsReassigned, result.ItemsInherited, result.ItemsReassigned)
	return err
}
