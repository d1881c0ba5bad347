package reconcile

import (
	"fmt"
	"time"

	"github.com/sells-group/dps-crimelog/internal/model"
)

// DayStatus is the outcome of checking one day.
type DayStatus string

const (
	// DayFound means a document was fetched and parsed.
	DayFound DayStatus = "found"
	// DayMissing means the publisher had no document for the day.
	DayMissing DayStatus = "missing"
	// DayFailed means the fetch or extraction failed.
	DayFailed DayStatus = "failed"
)

// DayResult reports one day of the window.
type DayResult struct {
	Day      time.Time
	URL      string
	Status   DayStatus
	Records  []model.Record
	Err      string
	Duration time.Duration
}

// Result summarizes a run.
type Result struct {
	ArchivePath  string
	ArchiveFound bool
	// Latest is the archive's newest date before the run, zero when none.
	Latest time.Time
	Today  time.Time

	WindowStart time.Time
	WindowEnd   time.Time
	UpToDate    bool
	Days        []DayResult

	DaysChecked  int
	DaysFound    int
	DaysFailed   int
	RowsFetched  int
	RowsAccepted int
	Duplicates   int

	// ArchiveRecords is the archive size after the run.
	ArchiveRecords int
	Written        bool
	DryRun         bool
	Duration       time.Duration
}

// LatestString formats Latest as YYYY-MM-DD, or "none".
func (r *Result) LatestString() string {
	if r.Latest.IsZero() {
		return "none"
	}
	return r.Latest.Format(time.DateOnly)
}

// Summary is a one-line description of the run.
func (r *Result) Summary() string {
	if r.UpToDate {
		return fmt.Sprintf("Archive is up to date (today %s).", r.Today.Format(time.DateOnly))
	}
	verb := "Wrote"
	switch {
	case r.DryRun:
		verb = "Dry run, would write"
	case !r.Written:
		verb = "No changes,"
	}
	return fmt.Sprintf("Checked %d days %s..%s: %d found, %d failed; %d rows fetched, %d new, %d duplicates. %s %d records.",
		r.DaysChecked,
		r.WindowStart.Format(time.DateOnly), r.WindowEnd.Format(time.DateOnly),
		r.DaysFound, r.DaysFailed,
		r.RowsFetched, r.RowsAccepted, r.Duplicates,
		verb, r.ArchiveRecords,
	)
}
