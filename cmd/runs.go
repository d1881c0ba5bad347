package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dps-crimelog/internal/synclog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect sync run history",
	Long:  "Commands for listing sync runs and the per-day outcome of a run.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runlog, err := synclog.Open(ctx, cfg.RunLog)
		if err != nil {
			return err
		}
		defer runlog.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := runlog.List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, entries)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the per-day results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runlog, err := synclog.Open(ctx, cfg.RunLog)
		if err != nil {
			return err
		}
		defer runlog.Close() //nolint:errcheck

		days, err := runlog.Days(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if len(days) == 0 {
			fmt.Fprintln(os.Stderr, "No days recorded for this run.")
			return nil
		}

		formatRunDays(os.Stdout, days)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, entries []synclog.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tWINDOW\tDAYS\tFOUND\tFAILED\tADDED\tDUPES\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t------\t----\t-----\t------\t-----\t-----\t--------")

	for _, e := range entries {
		window := "-"
		if e.WindowStart != nil && e.WindowEnd != nil {
			window = e.WindowStart.Format(time.DateOnly) + ".." + e.WindowEnd.Format(time.DateOnly)
		}
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			shortID(e.ID),
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			window,
			e.DaysChecked,
			e.DaysFound,
			e.DaysFailed,
			e.RowsAdded,
			e.Duplicates,
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunDays writes the per-day outcome of a run to out.
func formatRunDays(out io.Writer, days []synclog.Day) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DAY\tSTATUS\tROWS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t----\t--------\t-----")

	for _, d := range days {
		errMsg := d.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			d.Day.Format(time.DateOnly),
			d.Status,
			d.Rows,
			(time.Duration(d.DurationMs) * time.Millisecond).String(),
			errMsg,
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
