package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/model"
	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archive and the window the next sync would fetch",
	RunE: func(_ *cobra.Command, _ []string) error {
		return showStatus(os.Stdout, cfg, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// archiveStatus describes the archive without fetching anything.
type archiveStatus struct {
	CSVPath   string
	CSVFound  bool
	JSONPath  string
	JSONFound bool
	Records   int
	Latest    time.Time
	Today     time.Time
	NextStart time.Time
	NextEnd   time.Time
	UpToDate  bool
	NextDays  int
}

func loadStatus(c *config.Config, now time.Time) (*archiveStatus, error) {
	earliest, err := c.Sync.Earliest()
	if err != nil {
		return nil, err
	}
	loc, err := c.Sync.Location()
	if err != nil {
		return nil, err
	}

	store := archive.NewStore(c.Archive)
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}

	st := &archiveStatus{
		CSVPath:  snap.Path,
		CSVFound: snap.Found,
		JSONPath: store.JSONPath(),
		Records:  len(snap.Records),
		Latest:   snap.Latest,
		Today:    model.CivilDate(now.In(loc)),
	}
	if _, err := os.Stat(store.JSONPath()); err == nil {
		st.JSONFound = true
	}

	st.NextStart, st.NextEnd = reconcile.Window(snap.Latest, earliest, st.Today)
	st.UpToDate = st.NextStart.After(st.NextEnd)
	if !st.UpToDate {
		st.NextDays = len(reconcile.Days(st.NextStart, st.NextEnd))
	}
	return st, nil
}

func showStatus(out io.Writer, c *config.Config, now time.Time) error {
	st, err := loadStatus(c, now)
	if err != nil {
		return err
	}
	formatStatus(out, st)
	return nil
}

func formatStatus(out io.Writer, st *archiveStatus) {
	fmt.Fprintf(out, "CSV:     %s (%s)\n", st.CSVPath, presence(st.CSVFound))
	fmt.Fprintf(out, "JSON:    %s (%s)\n", st.JSONPath, presence(st.JSONFound))
	fmt.Fprintf(out, "Records: %d\n", st.Records)
	if st.Latest.IsZero() {
		fmt.Fprintln(out, "Latest:  none")
	} else {
		fmt.Fprintf(out, "Latest:  %s\n", st.Latest.Format(time.DateOnly))
	}
	if st.UpToDate {
		fmt.Fprintf(out, "Next:    up to date (today %s)\n", st.Today.Format(time.DateOnly))
		return
	}
	fmt.Fprintf(out, "Next:    %s..%s (%d days)\n",
		st.NextStart.Format(time.DateOnly), st.NextEnd.Format(time.DateOnly), st.NextDays)
}

func presence(ok bool) string {
	if ok {
		return "found"
	}
	return "missing"
}
