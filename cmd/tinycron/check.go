package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/cronexpr"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file and list its jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK, %d jobs\n", opts.configPath, len(cfg.Jobs))
			if len(cfg.Jobs) == 0 {
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSCHEDULE\tKIND\tNEXT RUN")
			for _, j := range cfg.Jobs {
				expr := cronexpr.MustParse(j.Schedule)
				next := "-"
				end := now.AddDate(nextHorizon, 0, 0)
				if t := expr.NextOccurrence(now, end); t.Before(end) {
					next = t.Format(occurrenceLayout)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Schedule, jobKind(j), next)
			}
			return w.Flush()
		},
	}
}

func jobKind(j config.JobConfig) string {
	switch {
	case j.HTTP != nil:
		return "http " + j.HTTP.Method
	case j.Interpreter != "":
		return j.Interpreter
	case j.PTY:
		return "shell (pty)"
	default:
		return "shell"
	}
}
