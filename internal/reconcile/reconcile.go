// Package reconcile brings the incident archive up to date with the daily
// logs published since its latest record.
package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/extract"
	"github.com/sells-group/dps-crimelog/internal/fetcher"
	"github.com/sells-group/dps-crimelog/internal/model"
)

const defaultWorkers = 12

// ArchiveStore loads and replaces the persisted archive.
type ArchiveStore interface {
	Load() (*archive.Snapshot, error)
	Save(records []model.Record) error
}

// DocumentSource retrieves the published log for a day.
type DocumentSource interface {
	Fetch(ctx context.Context, day time.Time) (fetcher.Document, error)
}

// Options configures a Reconciler.
type Options struct {
	// Earliest is the first day fetched when the archive has no dated record.
	Earliest time.Time
	Workers  int
	// Location decides which calendar day "today" is.
	Location *time.Location
	Clock    func() time.Time
	// Since and Until override the computed window when set.
	Since  time.Time
	Until  time.Time
	DryRun bool
	// OnLoad, when set, is called with the archive snapshot before any day
	// is fetched.
	OnLoad func(snap *archive.Snapshot)
}

// Reconciler runs one incremental sync of the archive.
type Reconciler struct {
	store ArchiveStore
	docs  DocumentSource
	ext   extract.Extractor
	opts  Options
}

// New creates a Reconciler.
func New(store ArchiveStore, docs DocumentSource, ext extract.Extractor, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Reconciler{store: store, docs: docs, ext: ext, opts: opts}
}

// Today returns the current civil date in the configured location.
func (r *Reconciler) Today() time.Time {
	return model.CivilDate(r.opts.Clock().In(r.opts.Location))
}

// Run loads the archive, fetches every day in the window, merges the new
// records and persists the result. Per-day failures are logged and counted;
// only archive read and write failures are returned.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	log := zap.L().With(zap.String("component", "reconcile"))
	began := r.opts.Clock()

	snap, err := r.store.Load()
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: load archive")
	}

	today := r.Today()
	start, end := Window(snap.Latest, r.opts.Earliest, today)
	if !r.opts.Since.IsZero() {
		start = r.opts.Since
	}
	if !r.opts.Until.IsZero() {
		end = r.opts.Until
	}

	res := &Result{
		ArchivePath:    snap.Path,
		ArchiveFound:   snap.Found,
		Latest:         snap.Latest,
		Today:          today,
		WindowStart:    start,
		WindowEnd:      end,
		ArchiveRecords: len(snap.Records),
		DryRun:         r.opts.DryRun,
	}

	log.Info("reconcile: archive loaded",
		zap.String("path", snap.Path),
		zap.Bool("found", snap.Found),
		zap.Int("records", len(snap.Records)),
		zap.String("latest", res.LatestString()),
	)
	if r.opts.OnLoad != nil {
		r.opts.OnLoad(snap)
	}

	var fetched []model.Record
	if start.After(end) {
		res.UpToDate = true
		log.Info("reconcile: archive is up to date", zap.String("today", today.Format(time.DateOnly)))
	} else {
		res.Days = r.fetchAll(ctx, Days(start, end))
		for _, d := range res.Days {
			res.DaysChecked++
			switch d.Status {
			case DayFound:
				res.DaysFound++
			case DayFailed:
				res.DaysFailed++
			}
			res.RowsFetched += len(d.Records)
			fetched = append(fetched, d.Records...)
		}
	}

	seen := make(map[string]struct{}, len(snap.EventIDs))
	for id := range snap.EventIDs {
		seen[id] = struct{}{}
	}
	accepted, dups := Dedup(fetched, seen)
	SortNewestFirst(accepted, today)
	res.RowsAccepted = len(accepted)
	res.Duplicates = dups

	// A missing archive is created even when there is nothing to add.
	if len(accepted) > 0 || !snap.Found {
		merged := Merge(accepted, snap.Records)
		if r.opts.DryRun {
			log.Info("reconcile: dry run, archive not written", zap.Int("records", len(merged)))
		} else {
			if err := r.store.Save(merged); err != nil {
				return nil, eris.Wrap(err, "reconcile: save archive")
			}
			res.Written = true
		}
		res.ArchiveRecords = len(merged)
	}

	res.Duration = r.opts.Clock().Sub(began)
	log.Info("reconcile: run complete",
		zap.Int("days_checked", res.DaysChecked),
		zap.Int("days_found", res.DaysFound),
		zap.Int("days_failed", res.DaysFailed),
		zap.Int("rows_fetched", res.RowsFetched),
		zap.Int("rows_added", res.RowsAccepted),
		zap.Int("duplicates", res.Duplicates),
		zap.Bool("written", res.Written),
	)
	return res, nil
}

// fetchAll runs fetch, extract and normalize for every day on a bounded pool.
// Each task fills its own slot so the results come back in calendar order
// whatever order the tasks finish in.
func (r *Reconciler) fetchAll(ctx context.Context, days []time.Time) []DayResult {
	log := zap.L().With(zap.String("component", "reconcile"))
	results := make([]DayResult, len(days))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	var found, failed atomic.Int64
	for i, day := range days {
		g.Go(func() error {
			results[i] = r.fetchDay(gCtx, day)
			switch results[i].Status {
			case DayFound:
				found.Add(1)
			case DayFailed:
				failed.Add(1)
				log.Warn("reconcile: day failed",
					zap.String("day", day.Format(time.DateOnly)),
					zap.String("url", results[i].URL),
					zap.String("error", results[i].Err),
				)
			}
			return nil // a failed day never aborts the run
		})
	}
	_ = g.Wait()

	log.Debug("reconcile: fetch complete",
		zap.Int("days", len(days)),
		zap.Int64("found", found.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results
}

func (r *Reconciler) fetchDay(ctx context.Context, day time.Time) (out DayResult) {
	began := time.Now()
	out = DayResult{Day: day, Status: DayMissing}
	defer func() { out.Duration = time.Since(began) }()

	doc, err := r.docs.Fetch(ctx, day)
	out.URL = doc.URL
	if err != nil {
		out.Status = DayFailed
		out.Err = err.Error()
		return out
	}
	if !doc.Found {
		return out
	}

	rows, err := extract.Rows(ctx, r.ext, doc.Body)
	if err != nil {
		out.Status = DayFailed
		out.Err = eris.Wrapf(err, "reconcile: extract %s", doc.URL).Error()
		return out
	}

	out.Status = DayFound
	out.Records = make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out.Records = append(out.Records, model.Normalize(row, doc.URL))
	}
	return out
}
