// Package synclog records every sync run and the outcome of each day it checked.
package synclog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/db"
	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

const defaultListLimit = 20

// Status is the state of a run.
type Status string

// Run statuses.
const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusUpToDate Status = "up_to_date"
	StatusFailed   Status = "failed"
)

// Entry is one recorded run.
type Entry struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	DaysChecked int        `json:"days_checked"`
	DaysFound   int        `json:"days_found"`
	DaysFailed  int        `json:"days_failed"`
	RowsFetched int        `json:"rows_fetched"`
	RowsAdded   int        `json:"rows_added"`
	Duplicates  int        `json:"duplicates"`
	Error       string     `json:"error,omitempty"`
}

// Day is the recorded outcome of one day within a run.
type Day struct {
	RunID      string    `json:"run_id"`
	Day        time.Time `json:"day"`
	Status     string    `json:"status"`
	URL        string    `json:"url"`
	Rows       int       `json:"rows"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Result rebuilds the summary of a finished run from its stored counts and
// day rows. Records are not stored, so the day results carry none.
func (e Entry) Result(days []Day) *reconcile.Result {
	res := &reconcile.Result{
		UpToDate:     e.Status == StatusUpToDate,
		DaysChecked:  e.DaysChecked,
		DaysFound:    e.DaysFound,
		DaysFailed:   e.DaysFailed,
		RowsFetched:  e.RowsFetched,
		RowsAccepted: e.RowsAdded,
		Duplicates:   e.Duplicates,
	}
	if e.WindowStart != nil {
		res.WindowStart = *e.WindowStart
	}
	if e.WindowEnd != nil {
		res.WindowEnd = *e.WindowEnd
	}
	if e.CompletedAt != nil {
		res.Duration = e.CompletedAt.Sub(e.StartedAt)
	}
	for _, d := range days {
		res.Days = append(res.Days, reconcile.DayResult{
			Day:      d.Day,
			URL:      d.URL,
			Status:   reconcile.DayStatus(d.Status),
			Err:      d.Error,
			Duration: time.Duration(d.DurationMs) * time.Millisecond,
		})
	}
	return res
}

// Log persists run history.
type Log interface {
	Migrate(ctx context.Context) error
	Start(ctx context.Context) (string, error)
	Complete(ctx context.Context, id string, res *reconcile.Result) error
	Fail(ctx context.Context, id string, runErr error) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Days(ctx context.Context, id string) ([]Day, error)
	Close() error
}

// Open returns the Log selected by cfg.Driver and migrates its schema.
func Open(ctx context.Context, cfg config.RunLogConfig) (Log, error) {
	var (
		l   Log
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		l, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		pool, perr := db.Connect(ctx, cfg.DatabaseURL)
		if perr != nil {
			return nil, perr
		}
		l = NewPostgres(pool, pool.Close)
	case "none":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("synclog: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Migrate(ctx); err != nil {
		l.Close() //nolint:errcheck
		return nil, err
	}
	return l, nil
}

// StatusFor maps a run result to its final status.
func StatusFor(res *reconcile.Result) Status {
	if res.UpToDate {
		return StatusUpToDate
	}
	return StatusComplete
}

func dayRows(id string, res *reconcile.Result) []Day {
	days := make([]Day, 0, len(res.Days))
	for _, d := range res.Days {
		days = append(days, Day{
			RunID:      id,
			Day:        d.Day,
			Status:     string(d.Status),
			URL:        d.URL,
			Rows:       len(d.Records),
			Error:      d.Err,
			DurationMs: d.Duration.Milliseconds(),
		})
	}
	return days
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func windowOf(res *reconcile.Result) (start, end *time.Time) {
	if !res.WindowStart.IsZero() {
		s := res.WindowStart
		start = &s
	}
	if !res.WindowEnd.IsZero() {
		e := res.WindowEnd
		end = &e
	}
	return start, end
}

// Nop discards run history.
type Nop struct{}

func (Nop) Migrate(context.Context) error                             { return nil }
func (Nop) Start(context.Context) (string, error)                     { return "", nil }
func (Nop) Complete(context.Context, string, *reconcile.Result) error { return nil }
func (Nop) Fail(context.Context, string, error) error                 { return nil }
func (Nop) List(context.Context, int) ([]Entry, error)                { return nil, nil }
func (Nop) Days(context.Context, string) ([]Day, error)               { return nil, nil }
func (Nop) Close() error                                              { return nil }
