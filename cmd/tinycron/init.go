package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guojianbin/TinyCron/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			if err := config.Save(opts.configPath, config.Sample()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
