package synclog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/db"
	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

var runDaysTable = pgx.Identifier{"crimelog", "run_days"}

var runDaysColumns = []string{"run_id", "day", "status", "url", "rows", "error", "duration_ms"}

// Postgres implements Log against a Postgres pool.
type Postgres struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a Postgres run log. closeFn may be nil.
func NewPostgres(pool db.Pool, closeFn func()) *Postgres {
	return &Postgres{pool: pool, closeFn: closeFn}
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS crimelog;

CREATE TABLE IF NOT EXISTS crimelog.runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	window_start DATE,
	window_end   DATE,
	days_checked INTEGER NOT NULL DEFAULT 0,
	days_found   INTEGER NOT NULL DEFAULT 0,
	days_failed  INTEGER NOT NULL DEFAULT 0,
	rows_fetched INTEGER NOT NULL DEFAULT 0,
	rows_added   INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS crimelog.run_days (
	run_id      TEXT NOT NULL REFERENCES crimelog.runs(id),
	day         DATE NOT NULL,
	status      TEXT NOT NULL,
	url         TEXT NOT NULL,
	rows        INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, day)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON crimelog.runs(started_at DESC);
`

// Migrate creates the crimelog schema and run tables if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "synclog: migrate postgres")
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}

// Start records the beginning of a run and returns its ID.
func (p *Postgres) Start(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO crimelog.runs (id, status, started_at) VALUES ($1, 'running', now())`,
		id,
	); err != nil {
		return "", eris.Wrap(err, "synclog: start run")
	}
	return id, nil
}

// Complete stores the run's result and bulk-copies its per-day outcomes.
func (p *Postgres) Complete(ctx context.Context, id string, res *reconcile.Result) error {
	start, end := windowOf(res)
	tag, err := p.pool.Exec(ctx,
		`UPDATE crimelog.runs
		 SET status = $1, completed_at = now(), window_start = $2, window_end = $3,
		     days_checked = $4, days_found = $5, days_failed = $6,
		     rows_fetched = $7, rows_added = $8, duplicates = $9
		 WHERE id = $10`,
		string(StatusFor(res)), start, end,
		res.DaysChecked, res.DaysFound, res.DaysFailed,
		res.RowsFetched, res.RowsAccepted, res.Duplicates,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("synclog: run not found: %s", id)
	}

	days := dayRows(id, res)
	rows := make([][]any, 0, len(days))
	for _, d := range days {
		var errVal any
		if d.Error != "" {
			errVal = d.Error
		}
		rows = append(rows, []any{d.RunID, d.Day, d.Status, d.URL, d.Rows, errVal, d.DurationMs})
	}
	if _, err := db.CopyFrom(ctx, p.pool, runDaysTable, runDaysColumns, rows); err != nil {
		return eris.Wrapf(err, "synclog: record days for %s", id)
	}
	return nil
}

// Fail marks a run as failed.
func (p *Postgres) Fail(ctx context.Context, id string, runErr error) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE crimelog.runs SET status = 'failed', completed_at = now(), error = $1 WHERE id = $2`,
		errString(runErr), id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("synclog: run not found: %s", id)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit returns 20.
func (p *Postgres) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, status, started_at, completed_at, window_start, window_end,
		        days_checked, days_found, days_failed, rows_fetched, rows_added, duplicates, error
		 FROM crimelog.runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list runs")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var errStr *string
		if err := rows.Scan(&e.ID, &status, &e.StartedAt, &e.CompletedAt, &e.WindowStart, &e.WindowEnd,
			&e.DaysChecked, &e.DaysFound, &e.DaysFailed, &e.RowsFetched, &e.RowsAdded, &e.Duplicates, &errStr); err != nil {
			return nil, eris.Wrap(err, "synclog: scan run")
		}
		e.Status = Status(status)
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Days returns the per-day outcomes of a run in calendar order.
func (p *Postgres) Days(ctx context.Context, id string) ([]Day, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT run_id, day, status, url, rows, error, duration_ms
		 FROM crimelog.run_days WHERE run_id = $1 ORDER BY day`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "synclog: list days for %s", id)
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		var d Day
		var day time.Time
		var errStr *string
		if err := rows.Scan(&d.RunID, &day, &d.Status, &d.URL, &d.Rows, &errStr, &d.DurationMs); err != nil {
			return nil, eris.Wrap(err, "synclog: scan day")
		}
		d.Day = day
		if errStr != nil {
			d.Error = *errStr
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
