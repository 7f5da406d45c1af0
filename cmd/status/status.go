// Package status provides the status command
package status

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/movingbox/storemigrate/internal/conf"
	datastoreV2 "github.com/movingbox/storemigrate/internal/datastore/v2"
)

// Command creates and returns the status command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration progress without touching the legacy store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(settings, cmd.OutOrStdout())
		},
	}

	return cmd
}

func printStatus(settings *conf.Settings, out io.Writer) error {
	state := datastoreV2.CheckMigrationStateBeforeStartup(settings)
	if state.Error != nil {
		return state.Error
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(tw, format, args...)
	}

	p("state:\t%s\n", state.MigrationStatus)
	p("failed attempts:\t%d\n", state.Flags.AttemptCount)
	if state.Flags.LastFailureReason != "" {
		p("last failure:\t%s\n", state.Flags.LastFailureReason)
	}
	p("schema migrated:\t%t\n", state.Flags.SchemaMigrationComplete)
	p("photos migrated:\t%t\n", state.Flags.PhotoMigrationComplete)
	p("homes canonical:\t%t\n", state.Flags.HomeCullingComplete)
	p("target store:\t%s\n", present(state.TargetAvailable))
	p("legacy store:\t%s\n", present(state.LegacyExists))
	if state.FreshInstall {
		p("fresh install:\ttrue\n")
	}

	manifest, err := datastoreV2.LatestManifest(settings.Data.BackupDir)
	if err != nil {
		return err
	}
	if manifest != nil {
		p("archived:\t%s (%d files)\n", manifest.ArchivedAt.Format("2006-01-02 15:04:05Z07:00"), len(manifest.Files))
		for _, o := range manifest.Offsite {
			p("  offsite:\t%s\n", o)
		}
	}

	return tw.Flush()
}

func present(ok bool) string {
	if ok {
		return "present"
	}
	return "absent"
}
