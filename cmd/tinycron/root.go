package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/version"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "tinycron",
		Short:         "A small cron daemon",
		Long:          "tinycron runs shell commands and webhooks on crontab schedules.",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultConfigPath, "path to configuration file")

	root.AddCommand(
		newRunCmd(opts),
		newNextCmd(),
		newCheckCmd(opts),
		newHistoryCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
