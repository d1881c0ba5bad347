package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/metrics"
	"github.com/sells-group/dps-crimelog/internal/reconcile"
	"github.com/sells-group/dps-crimelog/internal/synclog"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new daily logs and merge them into the archive",
	Long: `Loads the archive, fetches every daily log from the day after its latest
record through today, drops rows whose event number is already archived and
writes the new rows, newest first, ahead of the existing ones.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		workers, _ := cmd.Flags().GetInt("workers")
		sinceFlag, _ := cmd.Flags().GetString("since")
		untilFlag, _ := cmd.Flags().GetString("until")

		since, err := parseDay("since", sinceFlag)
		if err != nil {
			return err
		}
		until, err := parseDay("until", untilFlag)
		if err != nil {
			return err
		}

		_, err = runSync(ctx, os.Stdout, cfg, syncOptions{
			DryRun:  dryRun,
			Since:   since,
			Until:   until,
			Workers: workers,
		})
		return err
	},
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "fetch and merge without writing the archive")
	syncCmd.Flags().String("since", "", "first day to fetch (YYYY-MM-DD), overrides the computed window")
	syncCmd.Flags().String("until", "", "last day to fetch (YYYY-MM-DD), defaults to today")
	syncCmd.Flags().Int("workers", 0, "concurrent day fetches (0 = sync.workers)")
	rootCmd.AddCommand(syncCmd)
}

// runSync performs one sync, records it in the run log and reports it on out.
// The run log is best effort: when it cannot be opened the sync still runs.
func runSync(ctx context.Context, out io.Writer, c *config.Config, so syncOptions) (*reconcile.Result, error) {
	log := zap.L().With(zap.String("component", "sync"))

	store := archive.NewStore(c.Archive)
	so.OnLoad = func(snap *archive.Snapshot) { printDiscovery(out, snap) }
	rec, err := newReconciler(c, store, so)
	if err != nil {
		return nil, err
	}

	var runlog synclog.Log = synclog.Nop{}
	if l, err := synclog.Open(ctx, c.RunLog); err != nil {
		log.Warn("sync: run log unavailable, continuing without it", zap.Error(err))
	} else {
		runlog = l
	}
	defer runlog.Close() //nolint:errcheck

	runID, err := runlog.Start(ctx)
	if err != nil {
		log.Warn("sync: failed to record run start", zap.Error(err))
	}

	res, err := rec.Run(ctx)
	if err != nil {
		if runID != "" {
			if ferr := runlog.Fail(ctx, runID, err); ferr != nil {
				log.Warn("sync: failed to record run failure", zap.Error(ferr))
			}
		}
		return nil, err
	}

	if runID != "" {
		if cerr := runlog.Complete(ctx, runID, res); cerr != nil {
			log.Warn("sync: failed to record run completion", zap.Error(cerr))
		}
	}

	if c.Metrics.PushURL != "" {
		m := metrics.New()
		m.Observe(res, time.Now())
		if perr := m.Push(ctx, c.Metrics.PushURL, c.Metrics.Job); perr != nil {
			log.Warn("sync: metrics push failed", zap.Error(perr))
		}
	}

	fmt.Fprintln(out, res.Summary())
	return res, nil
}

// printDiscovery reports where the archive was looked for and its latest date.
func printDiscovery(out io.Writer, snap *archive.Snapshot) {
	if snap.Found {
		fmt.Fprintf(out, "CSV found at: %s\n", snap.Path)
	} else {
		fmt.Fprintf(out, "CSV NOT found at: %s\n", snap.Path)
	}
	latest := "none"
	if snap.HasLatest() {
		latest = snap.Latest.Format(time.DateOnly)
	}
	fmt.Fprintf(out, "Latest date in CSV: %s\n", latest)
}
