package synclog

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // driver

	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

// SQLite implements Log using modernc.org/sqlite.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	if dsn == "" {
		dsn = "crimelog.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "synclog: exec %s", pragma)
		}
	}
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	window_start DATETIME,
	window_end   DATETIME,
	days_checked INTEGER NOT NULL DEFAULT 0,
	days_found   INTEGER NOT NULL DEFAULT 0,
	days_failed  INTEGER NOT NULL DEFAULT 0,
	rows_fetched INTEGER NOT NULL DEFAULT 0,
	rows_added   INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS run_days (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	day         DATETIME NOT NULL,
	status      TEXT NOT NULL,
	url         TEXT NOT NULL,
	rows        INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, day)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the run tables if needed.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "synclog: migrate sqlite")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Start records the beginning of a run and returns its ID.
func (s *SQLite) Start(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(StatusRunning), s.now(),
	)
	if err != nil {
		return "", eris.Wrap(err, "synclog: start run")
	}
	return id, nil
}

// Complete stores the run's result and its per-day outcomes.
func (s *SQLite) Complete(ctx context.Context, id string, res *reconcile.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "synclog: begin complete")
	}
	defer tx.Rollback() //nolint:errcheck

	start, end := windowOf(res)
	out, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, window_start = ?, window_end = ?,
		 days_checked = ?, days_found = ?, days_failed = ?, rows_fetched = ?, rows_added = ?, duplicates = ?
		 WHERE id = ?`,
		string(StatusFor(res)), s.now(), start, end,
		res.DaysChecked, res.DaysFound, res.DaysFailed, res.RowsFetched, res.RowsAccepted, res.Duplicates,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete run %s", id)
	}
	if err := checkRowsAffected(out, id); err != nil {
		return err
	}

	for _, d := range dayRows(id, res) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_days (run_id, day, status, url, rows, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.RunID, d.Day, d.Status, d.URL, d.Rows, nullString(d.Error), d.DurationMs,
		); err != nil {
			return eris.Wrapf(err, "synclog: insert day %s", d.Day.Format(time.DateOnly))
		}
	}

	return eris.Wrap(tx.Commit(), "synclog: commit complete")
}

// Fail marks a run as failed.
func (s *SQLite) Fail(ctx context.Context, id string, runErr error) error {
	out, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(StatusFailed), s.now(), errString(runErr), id,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail run %s", id)
	}
	return checkRowsAffected(out, id)
}

// List returns the most recent runs first. A non-positive limit returns 20.
func (s *SQLite) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, started_at, completed_at, window_start, window_end,
		 days_checked, days_found, days_failed, rows_fetched, rows_added, duplicates, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Status, &e.StartedAt, &e.CompletedAt, &e.WindowStart, &e.WindowEnd,
			&e.DaysChecked, &e.DaysFound, &e.DaysFailed, &e.RowsFetched, &e.RowsAdded, &e.Duplicates, &errStr); err != nil {
			return nil, eris.Wrap(err, "synclog: scan run")
		}
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "synclog: list runs iterate")
}

// Days returns the per-day outcomes of a run in calendar order.
func (s *SQLite) Days(ctx context.Context, id string) ([]Day, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, day, status, url, rows, error, duration_ms
		 FROM run_days WHERE run_id = ? ORDER BY day`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "synclog: list days for %s", id)
	}
	defer rows.Close() //nolint:errcheck

	var days []Day
	for rows.Next() {
		var d Day
		var errStr sql.NullString
		if err := rows.Scan(&d.RunID, &d.Day, &d.Status, &d.URL, &d.Rows, &errStr, &d.DurationMs); err != nil {
			return nil, eris.Wrap(err, "synclog: scan day")
		}
		d.Error = errStr.String
		days = append(days, d)
	}
	return days, eris.Wrap(rows.Err(), "synclog: list days iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "synclog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("synclog: run not found: %s", id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
