package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/guojianbin/TinyCron/internal/cronexpr"
)

// nextHorizon bounds the search, long enough for a Feb 29 schedule to
// fire across a skipped century leap year.
const nextHorizon = 10

const occurrenceLayout = "Mon 2006-01-02 15:04 MST"

func newNextCmd() *cobra.Command {
	var (
		count int
		from  string
		utc   bool
	)

	cmd := &cobra.Command{
		Use:   "next <expression>",
		Short: "Print the next occurrences of a cron expression",
		Example: `  tinycron next "*/15 9-17 * * Mon-Fri"
  tinycron next --count 3 --from 2024-02-28T00:00:00Z 0 0 29 2 '*'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("invalid --count %d: must be at least 1", count)
			}
			expr, err := cronexpr.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}

			base, err := parseFrom(from)
			if err != nil {
				return err
			}
			if utc {
				base = base.UTC()
			}
			end := base.AddDate(nextHorizon, 0, 0)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", expr.Format())

			printed := 0
			for t := range expr.Occurrences(base, end) {
				fmt.Fprintln(out, t.Format(occurrenceLayout))
				printed++
				if printed >= count {
					break
				}
			}
			if printed == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no occurrences within %d years\n", nextHorizon)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences to print")
	cmd.Flags().StringVar(&from, "from", "", "start time (RFC 3339 or \"2006-01-02 15:04\" local); default now")
	cmd.Flags().BoolVar(&utc, "utc", false, "evaluate the schedule in UTC instead of local time")
	return cmd
}

func parseFrom(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --from value %q: want RFC 3339 or \"2006-01-02 15:04\"", value)
	}
	return t, nil
}
