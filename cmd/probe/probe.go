// Package probe provides the probe command
package probe

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/movingbox/storemigrate/internal/app"
	"github.com/movingbox/storemigrate/internal/conf"
	"github.com/movingbox/storemigrate/internal/logger"
)

// Command creates and returns the probe command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Ask the sync service for stranded remote state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runProbe(ctx context.Context, settings *conf.Settings, out io.Writer) error {
	coordinator, err := app.NewRemoteCoordinator(settings, logger.Global().Module("remote"))
	if err != nil {
		return err
	}
	if coordinator == nil {
		return fmt.Errorf("remote probe is disabled; set remote.enabled and remote.endpoint")
	}

	outcome := coordinator.Run(ctx)
	if outcome.Error != "" {
		return fmt.Errorf("remote probe failed: %s", outcome.Error)
	}

	_, _ = fmt.Fprintf(out, "stranded state: %s\n", outcome.Kind)
	for _, r := range outcome.Records {
		_, _ = fmt.Fprintf(out, "  zone %s: %d %s records\n", r.ZoneID, r.Count, r.RecordType)
	}
	return nil
}
