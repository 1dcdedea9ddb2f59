package main

import (
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/traychat/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "traychat",
		Short:        "Tray chat assistant backend",
		Long:         "Serves the local bridge for the tray chat window and offers the same commands from the terminal.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a TOML config file (default $"+config.PathEnv+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newSettingsCmd(opts),
		newTokenCmd(opts),
		newTranscriptCmd(opts),
	)
	return cmd
}
