package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	goyaml "gopkg.in/yaml.v3"

	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/history"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		jobID  string
		output string
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded job runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("invalid --output %q: want table or yaml", output)
			}

			if dbPath == "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				dbPath = cfg.HistoryPath
			}
			if dbPath == "" {
				return errors.New("run history is disabled (history_path is empty)")
			}

			store, err := history.OpenReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []*history.Run
			if jobID != "" {
				runs, err = store.ForJob(jobID, limit)
			} else {
				runs, err = store.Recent(limit)
			}
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}

			if output == "yaml" {
				return goyaml.NewEncoder(cmd.OutOrStdout()).Encode(runs)
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&jobID, "job", "", "only show runs of this job id")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default: history_path from the config)")
	return cmd
}

func printRuns(out io.Writer, runs []*history.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tJOB\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		duration := (time.Duration(r.DurationMs) * time.Millisecond).String()
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.JobID,
			r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			truncate(r.Error, 60),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
