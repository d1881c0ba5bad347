// Package metrics exposes sync counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/reconcile"
)

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	daysChecked    prometheus.Counter
	daysFound      prometheus.Counter
	daysFailed     prometheus.Counter
	rowsFetched    prometheus.Counter
	rowsAdded      prometheus.Counter
	duplicates     prometheus.Counter
	archiveRecords prometheus.Gauge
	lastRun        prometheus.Gauge
	fetchDuration  *prometheus.HistogramVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		daysChecked: counter("crimelog_days_checked_total", "Days checked for a published log."),
		daysFound:   counter("crimelog_days_found_total", "Days with a published log."),
		daysFailed:  counter("crimelog_days_failed_total", "Days whose fetch or extraction failed."),
		rowsFetched: counter("crimelog_rows_fetched_total", "Rows extracted from fetched logs."),
		rowsAdded:   counter("crimelog_rows_added_total", "Rows added to the archive."),
		duplicates:  counter("crimelog_duplicates_total", "Rows skipped as duplicate event ids."),
		archiveRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crimelog_archive_records",
			Help: "Records in the archive.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crimelog_last_run_timestamp_seconds",
			Help: "Unix time of the last completed sync.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crimelog_fetch_duration_seconds",
			Help:    "Time to fetch and extract one day's log.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.daysChecked, m.daysFound, m.daysFailed,
		m.rowsFetched, m.rowsAdded, m.duplicates,
		m.archiveRecords, m.lastRun, m.fetchDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Observe records a completed run at the given time.
func (m *Metrics) Observe(res *reconcile.Result, at time.Time) {
	m.daysChecked.Add(float64(res.DaysChecked))
	m.daysFound.Add(float64(res.DaysFound))
	m.daysFailed.Add(float64(res.DaysFailed))
	m.rowsFetched.Add(float64(res.RowsFetched))
	m.rowsAdded.Add(float64(res.RowsAccepted))
	m.duplicates.Add(float64(res.Duplicates))
	m.archiveRecords.Set(float64(res.ArchiveRecords))
	m.lastRun.Set(float64(at.Unix()))
	for _, d := range res.Days {
		m.fetchDuration.WithLabelValues(string(d.Status)).Observe(d.Duration.Seconds())
	}
}

// SetArchiveRecords sets the archive size gauge.
func (m *Metrics) SetArchiveRecords(n int) {
	m.archiveRecords.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return eris.Wrapf(err, "metrics: push to %s", url)
	}
	return nil
}
