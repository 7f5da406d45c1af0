// Package cmd assembles the storemigrate command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/movingbox/storemigrate/cmd/canonicalize"
	"github.com/movingbox/storemigrate/cmd/photos"
	"github.com/movingbox/storemigrate/cmd/probe"
	"github.com/movingbox/storemigrate/cmd/resetretries"
	"github.com/movingbox/storemigrate/cmd/run"
	"github.com/movingbox/storemigrate/cmd/status"
	"github.com/movingbox/storemigrate/internal/app"
	"github.com/movingbox/storemigrate/internal/buildinfo"
	"github.com/movingbox/storemigrate/internal/conf"
	"github.com/movingbox/storemigrate/internal/errors"
	"github.com/movingbox/storemigrate/internal/logger"
)

// sentryFlushTimeout bounds how long Shutdown waits for queued error reports.
const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Subcommands share one
// Settings value that is filled in once flags are parsed.
func RootCommand(bi *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "storemigrate",
		Short:         "Migrate a legacy inventory store into the canonical store",
		Version:       bi.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default: search ., ~/.config/storemigrate, /etc/storemigrate)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("bind debug flag: %v", err))
	}

	rootCmd.AddCommand(
		run.Command(settings),
		status.Command(settings),
		canonicalize.Command(settings),
		photos.Command(settings),
		probe.Command(settings),
		resetretries.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		if _, err := app.SetupLogging(settings); err != nil {
			return err
		}
		return app.SetupTelemetry(settings, bi)
	}

	return rootCmd
}

// Shutdown flushes error reports and log buffers. Call it once the root
// command returns, whether or not it failed.
func Shutdown() {
	errors.FlushSentry(sentryFlushTimeout)
	_ = logger.Global().Close()
}
