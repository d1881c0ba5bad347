package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dps-crimelog/internal/archive"
	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/extract"
	"github.com/sells-group/dps-crimelog/internal/fetcher"
	"github.com/sells-group/dps-crimelog/internal/model"
)

const testBase = "https://logs.example.test/uploads"

// jsonExtractor treats a document body as one JSON-encoded table.
type jsonExtractor struct{}

func (jsonExtractor) ExtractTables(_ context.Context, pdf []byte) ([]extract.Table, error) {
	var tbl extract.Table
	if err := json.Unmarshal(pdf, &tbl); err != nil {
		return nil, eris.Wrap(err, "decode table")
	}
	return []extract.Table{tbl}, nil
}

// doc encodes rows as a document body with a header row.
func doc(t *testing.T, rows ...[]string) []byte {
	t.Helper()
	tbl := append([][]string{{"Date Reported", "Event #", "Case #", "Offense"}}, rows...)
	data, err := json.Marshal(tbl)
	require.NoError(t, err)
	return data
}

type fakeDocs struct {
	bodies map[string][]byte
	errs   map[string]error
	delays map[string]time.Duration

	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
}

func (f *fakeDocs) Fetch(_ context.Context, day time.Time) (fetcher.Document, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	key := day.Format(time.DateOnly)
	if d := f.delays[key]; d > 0 {
		time.Sleep(d)
	}

	d := fetcher.Document{Day: day, URL: fetcher.DocumentURL(testBase, day)}
	if err := f.errs[key]; err != nil {
		return d, err
	}
	body, ok := f.bodies[key]
	if !ok {
		return d, nil
	}
	d.Body = body
	d.Found = true
	return d, nil
}

type failingStore struct {
	snap    *archive.Snapshot
	loadErr error
	saveErr error
}

func (s failingStore) Load() (*archive.Snapshot, error) { return s.snap, s.loadErr }
func (s failingStore) Save([]model.Record) error        { return s.saveErr }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newStore(t *testing.T) *archive.Store {
	t.Helper()
	return archive.NewStore(config.ArchiveConfig{
		Dir:      t.TempDir(),
		CSVFile:  "usc_crime_logs.csv",
		JSONFile: "usc_crime_logs.json",
	})
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRun_EmptyArchiveMissingDocument(t *testing.T) {
	store := newStore(t)
	docs := &fakeDocs{}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2023, 12, 4),
		Clock:    fixedClock(time.Date(2023, 12, 4, 15, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.ArchiveFound)
	assert.Equal(t, "none", res.LatestString())
	assert.Equal(t, date(2023, 12, 4), res.WindowStart)
	assert.Equal(t, date(2023, 12, 4), res.WindowEnd)
	assert.Equal(t, 1, res.DaysChecked)
	assert.Zero(t, res.DaysFound)
	assert.Zero(t, res.RowsAccepted)
	require.Len(t, res.Days, 1)
	assert.Equal(t, DayMissing, res.Days[0].Status)
	assert.Equal(t, testBase+"/2023/12/120423.pdf", res.Days[0].URL)

	// The archive is created holding only the header / empty set.
	assert.True(t, res.Written)
	assert.Equal(t, strings.Join(model.Columns, ",")+"\n", string(readFile(t, store.CSVPath())))
	assert.Equal(t, "[]\n", string(readFile(t, store.JSONPath())))

	// A second run finds the empty archive and leaves it alone.
	res, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.ArchiveFound)
	assert.False(t, res.Written)
	assert.Equal(t, int64(2), docs.calls.Load())
}

func TestRun_DuplicateEventIDDropped(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{
		{DateReported: "01/05/24", EventID: "E1", Offense: "THEFT", SourceURL: testBase + "/2024/01/010524.pdf"},
	}))
	csvBefore := readFile(t, store.CSVPath())
	jsonBefore := readFile(t, store.JSONPath())

	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-06": doc(t, []string{"01/06/24", "E1", "C9", "FRAUD"}),
	}}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2023, 12, 4),
		Clock:    fixedClock(time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", res.LatestString())
	assert.Equal(t, date(2024, 1, 6), res.WindowStart)
	assert.Equal(t, 1, res.DaysFound)
	assert.Equal(t, 1, res.RowsFetched)
	assert.Equal(t, 1, res.Duplicates)
	assert.Zero(t, res.RowsAccepted)
	assert.False(t, res.Written)

	assert.Equal(t, csvBefore, readFile(t, store.CSVPath()))
	assert.Equal(t, jsonBefore, readFile(t, store.JSONPath()))
}

func TestRun_EmptyEventIDsAllKept(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{
		{DateReported: "01/05/24", EventID: "", Offense: "ALARM"},
	}))

	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-06": doc(t,
			[]string{"01/06/24", "", "", "THEFT"},
			[]string{"01/06/24", "", "", "VANDALISM"},
			[]string{"01/06/24", "", "", "ALARM"},
		),
	}}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2023, 12, 4),
		Clock:    fixedClock(time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsAccepted)
	assert.Zero(t, res.Duplicates)
	assert.True(t, res.Written)
	assert.Equal(t, 4, res.ArchiveRecords)

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Records, 4)
	assert.Equal(t, "THEFT", snap.Records[0].Offense)
	assert.Equal(t, "VANDALISM", snap.Records[1].Offense)
	assert.Equal(t, "ALARM", snap.Records[2].Offense)
	assert.Equal(t, "01/05/24", snap.Records[3].DateReported)
	assert.Equal(t, testBase+"/2024/01/010624.pdf", snap.Records[0].SourceURL)
}

func TestRun_MergeOrdering(t *testing.T) {
	store := newStore(t)
	existing := []model.Record{
		{DateReported: "01/01/24", EventID: "E0"},
		{DateReported: "12/31/23", EventID: "E-1"},
	}
	require.NoError(t, store.Save(existing))

	docs := &fakeDocs{
		bodies: map[string][]byte{
			"2024-01-02": doc(t, []string{"01/02/24 08:00", "A"}),
			"2024-01-03": doc(t,
				[]string{"01/03/24", "B"},
				[]string{"", "U", "", "no date at all"},
				[]string{"see notes", "C", "", "", "", "", "01/02/24"},
			),
		},
		// The first day finishes last.
		delays: map[string]time.Duration{"2024-01-02": 30 * time.Millisecond},
	}
	r := New(store, docs, jsonExtractor{}, Options{
		Workers: 4,
		Clock:   fixedClock(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, date(2024, 1, 2), res.WindowStart)
	assert.Equal(t, date(2024, 1, 4), res.WindowEnd)
	assert.Equal(t, 3, res.DaysChecked)
	assert.Equal(t, 2, res.DaysFound)
	assert.Equal(t, 4, res.RowsAccepted)

	snap, err := store.Load()
	require.NoError(t, err)
	var ids []string
	for _, rec := range snap.Records {
		ids = append(ids, rec.EventID)
	}
	assert.Equal(t, []string{"U", "B", "A", "C", "E0", "E-1"}, ids)

	fromJSON, err := store.LoadJSON()
	require.NoError(t, err)
	assert.Equal(t, snap.Records, fromJSON)
}

func TestRun_DedupWithinPassKeepsEarliestDay(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{{DateReported: "01/01/24", EventID: "E0"}}))

	docs := &fakeDocs{
		bodies: map[string][]byte{
			"2024-01-02": doc(t, []string{"01/02/24", "E5", "", "first"}),
			"2024-01-03": doc(t, []string{"01/03/24", "E5", "", "second"}),
		},
		delays: map[string]time.Duration{"2024-01-02": 30 * time.Millisecond},
	}
	r := New(store, docs, jsonExtractor{}, Options{
		Workers: 2,
		Clock:   fixedClock(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsAccepted)
	assert.Equal(t, 1, res.Duplicates)

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "first", snap.Records[0].Offense)
}

func TestRun_DayFailuresIsolated(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{{DateReported: "01/01/24", EventID: "E0"}}))

	docs := &fakeDocs{
		bodies: map[string][]byte{
			"2024-01-03": []byte("%PDF not a table"),
			"2024-01-04": doc(t, []string{"01/04/24", "E4"}),
		},
		errs: map[string]error{"2024-01-02": eris.New("connection reset")},
	}
	r := New(store, docs, jsonExtractor{}, Options{
		Clock: fixedClock(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.DaysChecked)
	assert.Equal(t, 2, res.DaysFailed)
	assert.Equal(t, 1, res.DaysFound)
	assert.Equal(t, 1, res.RowsAccepted)
	assert.True(t, res.Written)

	require.Len(t, res.Days, 3)
	assert.Equal(t, DayFailed, res.Days[0].Status)
	assert.Contains(t, res.Days[0].Err, "connection reset")
	assert.Equal(t, DayFailed, res.Days[1].Status)
	assert.Contains(t, res.Days[1].Err, "reconcile: extract")
	assert.Equal(t, DayFound, res.Days[2].Status)
}

func TestRun_UpToDate(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{{DateReported: "01/06/24", EventID: "E1"}}))
	before := readFile(t, store.CSVPath())

	docs := &fakeDocs{}
	r := New(store, docs, jsonExtractor{}, Options{
		Clock: fixedClock(time.Date(2024, 1, 6, 23, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
	assert.False(t, res.Written)
	assert.Zero(t, res.DaysChecked)
	assert.Zero(t, docs.calls.Load())
	assert.Equal(t, before, readFile(t, store.CSVPath()))
	assert.Contains(t, res.Summary(), "up to date")
}

func TestRun_IdempotentRecheck(t *testing.T) {
	store := newStore(t)
	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-05": doc(t, []string{"01/05/24", "E1", "", "THEFT"}, []string{"01/05/24", "", "", "ALARM"}),
		"2024-01-06": doc(t, []string{"01/06/24", "E2", "", "FRAUD"}),
	}}
	opts := Options{
		Earliest: date(2024, 1, 5),
		Clock:    fixedClock(time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)),
	}

	res, err := New(store, docs, jsonExtractor{}, opts).Run(context.Background())
	require.NoError(t, err)
	require.True(t, res.Written)
	assert.Equal(t, 3, res.RowsAccepted)
	csv1 := readFile(t, store.CSVPath())
	json1 := readFile(t, store.JSONPath())

	// Plain second run: nothing new is published.
	res, err = New(store, docs, jsonExtractor{}, opts).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.UpToDate)
	assert.False(t, res.Written)

	// Rows without an event id cannot be matched against the archive, so the
	// re-checked document only carries keyed rows.
	docs.bodies["2024-01-05"] = doc(t, []string{"01/05/24", "E1", "", "THEFT"})
	opts.Since = date(2024, 1, 5)
	res, err = New(store, docs, jsonExtractor{}, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Duplicates)
	assert.False(t, res.Written)

	assert.Equal(t, csv1, readFile(t, store.CSVPath()))
	assert.Equal(t, json1, readFile(t, store.JSONPath()))
}

func TestRun_SinceUntilOverride(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Save([]model.Record{{DateReported: "01/10/24", EventID: "E10"}}))

	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-03": doc(t, []string{"01/03/24", "E3"}),
	}}
	r := New(store, docs, jsonExtractor{}, Options{
		Since: date(2024, 1, 2),
		Until: date(2024, 1, 4),
		Clock: fixedClock(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.DaysChecked)
	assert.Equal(t, int64(3), docs.calls.Load())
	assert.Equal(t, 1, res.RowsAccepted)

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "E3", snap.Records[0].EventID)
}

func TestRun_DryRun(t *testing.T) {
	store := newStore(t)
	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-05": doc(t, []string{"01/05/24", "E1"}),
	}}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2024, 1, 5),
		DryRun:   true,
		Clock:    fixedClock(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Written)
	assert.Equal(t, 1, res.ArchiveRecords)
	assert.Contains(t, res.Summary(), "Dry run")
	assert.NoFileExists(t, store.CSVPath())
	assert.NoFileExists(t, store.JSONPath())
}

func TestRun_LoadFailure(t *testing.T) {
	r := New(failingStore{loadErr: eris.New("permission denied")}, &fakeDocs{}, jsonExtractor{}, Options{})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile: load archive")
}

func TestRun_SaveFailure(t *testing.T) {
	store := failingStore{
		snap:    &archive.Snapshot{Found: true, EventIDs: map[string]struct{}{}},
		saveErr: eris.New("read-only file system"),
	}
	docs := &fakeDocs{bodies: map[string][]byte{
		"2024-01-05": doc(t, []string{"01/05/24", "E1"}),
	}}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2024, 1, 5),
		Clock:    fixedClock(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)),
	})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconcile: save archive")
}

func TestRun_OnLoadRunsBeforeSave(t *testing.T) {
	store := failingStore{
		snap:    &archive.Snapshot{Path: "/data/logs.csv", EventIDs: map[string]struct{}{}},
		saveErr: eris.New("read-only file system"),
	}
	var loaded *archive.Snapshot
	r := New(store, &fakeDocs{}, jsonExtractor{}, Options{
		Earliest: date(2024, 1, 5),
		Clock:    fixedClock(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)),
		OnLoad:   func(snap *archive.Snapshot) { loaded = snap },
	})

	_, err := r.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "/data/logs.csv", loaded.Path)
	assert.False(t, loaded.Found)
}

func TestRun_WorkerLimit(t *testing.T) {
	store := newStore(t)
	delays := map[string]time.Duration{}
	for _, d := range Days(date(2024, 1, 1), date(2024, 1, 20)) {
		delays[d.Format(time.DateOnly)] = 5 * time.Millisecond
	}
	docs := &fakeDocs{delays: delays}
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2024, 1, 1),
		Workers:  3,
		Clock:    fixedClock(time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.DaysChecked)
	assert.Equal(t, int64(20), docs.calls.Load())
	assert.LessOrEqual(t, docs.peak.Load(), int64(3))
}

func TestToday_UsesLocation(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 05:00 UTC on Jan 6 is still Jan 5 in Los Angeles.
	clock := fixedClock(time.Date(2024, 1, 6, 5, 0, 0, 0, time.UTC))
	assert.Equal(t, date(2024, 1, 5), New(nil, nil, nil, Options{Location: la, Clock: clock}).Today())
	assert.Equal(t, date(2024, 1, 6), New(nil, nil, nil, Options{Clock: clock}).Today())
}

func TestRun_HTTPDocuments(t *testing.T) {
	body := doc(t, []string{" 01/06/24 10:00 ", "E7", "C7", "BURGLARY"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2024/01/010624.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body) //nolint:errcheck
	}))
	defer srv.Close()

	store := newStore(t)
	docs := fetcher.NewDocuments(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RatePerSec: 100, Burst: 10}), srv.URL)
	r := New(store, docs, jsonExtractor{}, Options{
		Earliest: date(2024, 1, 5),
		Clock:    fixedClock(time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC)),
	})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.DaysChecked)
	assert.Equal(t, 1, res.DaysFound)
	assert.Zero(t, res.DaysFailed)

	snap, err := store.Load()
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "01/06/24 10:00", snap.Records[0].DateReported)
	assert.Equal(t, srv.URL+"/2024/01/010624.pdf", snap.Records[0].SourceURL)
	assert.Equal(t, date(2024, 1, 6), snap.Latest)
}
