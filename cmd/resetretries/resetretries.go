// Package resetretries provides the reset-retries command
package resetretries

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
	"github.com/movingbox/storemigrate/internal/logger"
)

// Command creates and returns the reset-retries command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-retries",
		Short: "Clear the retry bound after repairing the legacy store",
		Long:  `Reset-retries moves a failed migration back to not_started and clears its attempt count so the next run migrates again. It refuses to touch a migration that is not failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetRetries(settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func resetRetries(settings *conf.Settings, out io.Writer) error {
	log := logger.Global().Module("migration")

	mgr, err := datastoreV2.OpenTarget(settings, log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	state := datastoreV2.NewStateManager(mgr.DB())
	flags, err := state.Flags()
	if err != nil {
		return err
	}
	if err := state.ResetRetries(); err != nil {
		return err
	}

	log.Info("retry bound cleared",
		logger.String("phase", "schema"),
		logger.String("status", "reset"),
		logger.Int("attempts", flags.AttemptCount))
	_, err = fmt.Fprintf(out, "cleared %d failed attempts; the next run migrates again\n", flags.AttemptCount)
	return err
}
