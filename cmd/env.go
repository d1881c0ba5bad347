package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/extract"
	"github.com/sells-group/dps-crimelog/internal/fetcher"
	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

// syncOptions are the per-invocation overrides of a sync.
type syncOptions struct {
	DryRun  bool
	Since   time.Time
	Until   time.Time
	Workers int
	Clock   func() time.Time
	OnLoad  func(snap *archive.Snapshot)
}

// newReconciler wires the document source, extractor and archive from c.
func newReconciler(c *config.Config, store reconcile.ArchiveStore, so syncOptions) (*reconcile.Reconciler, error) {
	earliest, err := c.Sync.Earliest()
	if err != nil {
		return nil, err
	}
	loc, err := c.Sync.Location()
	if err != nil {
		return nil, err
	}
	ext, err := extract.NewExtractor(c.Extract)
	if err != nil {
		return nil, eris.Wrap(err, "init extractor")
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  c.Source.UserAgent,
		Timeout:    c.Source.Timeout(),
		RatePerSec: c.Source.RatePerSec,
		Burst:      c.Source.Burst,
		MaxBytes:   c.Source.MaxBytes,
	})
	docs := fetcher.NewDocuments(f, c.Source.BaseURL)

	workers := c.Sync.Workers
	if so.Workers > 0 {
		workers = so.Workers
	}

	return reconcile.New(store, docs, ext, reconcile.Options{
		Earliest: earliest,
		Workers:  workers,
		Location: loc,
		Clock:    so.Clock,
		Since:    so.Since,
		Until:    so.Until,
		DryRun:   so.DryRun,
		OnLoad:   so.OnLoad,
	}), nil
}

// parseDay parses a YYYY-MM-DD flag value; empty yields the zero time.
func parseDay(flag, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --%s %q (want YYYY-MM-DD)", flag, v)
	}
	return d, nil
}
