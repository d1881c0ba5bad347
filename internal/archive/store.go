// Package archive persists the incident archive as a CSV and JSON pair.
package archive

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/config"
	"github.com/sells-group/dps-crimelog/internal/model"
)

// Store reads and writes the archive files. The CSV is authoritative for
// loading; the JSON is rewritten alongside it on every save.
type Store struct {
	dir      string
	csvFile  string
	jsonFile string
}

// NewStore creates a Store for the files named in cfg.
func NewStore(cfg config.ArchiveConfig) *Store {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir, csvFile: cfg.CSVFile, jsonFile: cfg.JSONFile}
}

// CSVPath returns the CSV file path.
func (s *Store) CSVPath() string { return filepath.Join(s.dir, s.csvFile) }

// JSONPath returns the JSON file path.
func (s *Store) JSONPath() string { return filepath.Join(s.dir, s.jsonFile) }

// Snapshot is the archive as loaded at the start of a run.
type Snapshot struct {
	Path     string
	Found    bool
	Records  []model.Record
	EventIDs map[string]struct{}
	// Latest is the newest representative date, zero when no record is dated.
	Latest time.Time
}

// HasLatest reports whether any record carried a parseable date.
func (s *Snapshot) HasLatest() bool { return !s.Latest.IsZero() }

// Load reads the archive. A missing CSV is not an error: the snapshot is
// empty with Found false.
func (s *Store) Load() (*Snapshot, error) {
	path := s.CSVPath()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	snap := &Snapshot{Path: path, Records: []model.Record{}, EventIDs: map[string]struct{}{}}

	f, err := os.Open(s.CSVPath())
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open %s", s.CSVPath())
	}
	defer f.Close() //nolint:errcheck

	records, err := ReadCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "archive: load %s", s.CSVPath())
	}

	snap.Found = true
	snap.Records = records
	for _, r := range records {
		if r.HasEventID() {
			snap.EventIDs[r.EventID] = struct{}{}
		}
		if d, ok := r.RepresentativeDate(); ok && d.After(snap.Latest) {
			snap.Latest = d
		}
	}
	return snap, nil
}

// LoadJSON reads the JSON form of the archive.
func (s *Store) LoadJSON() ([]model.Record, error) {
	f, err := os.Open(s.JSONPath())
	if err != nil {
		return nil, eris.Wrapf(err, "archive: open %s", s.JSONPath())
	}
	defer f.Close() //nolint:errcheck
	return ReadJSON(f)
}

// Save replaces both files with records. Both forms are staged as pending
// files in the archive directory before either is renamed into place; if
// any write fails both are cleaned up and neither file changes. The JSON is
// renamed first so a failure between the two renames leaves the CSV at its
// previous state and the next run recomputes the same window.
func (s *Store) Save(records []model.Record) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "archive: create dir %s", s.dir)
	}

	csvFile, err := stage(s.CSVPath(), func(w io.Writer) error { return WriteCSV(w, records) })
	if err != nil {
		return err
	}
	defer csvFile.Cleanup() //nolint:errcheck

	jsonFile, err := stage(s.JSONPath(), func(w io.Writer) error { return WriteJSON(w, records) })
	if err != nil {
		return err
	}
	defer jsonFile.Cleanup() //nolint:errcheck

	if err := jsonFile.CloseAtomicallyReplace(); err != nil {
		return eris.Wrapf(err, "archive: replace %s", s.JSONPath())
	}
	if err := csvFile.CloseAtomicallyReplace(); err != nil {
		return eris.Wrapf(err, "archive: replace %s", s.CSVPath())
	}
	return nil
}

// WriteFile atomically writes records to path in the given format
// ("csv", "json" or "xlsx").
func WriteFile(path, format string, records []model.Record) error {
	switch format {
	case "csv":
		return writeAtomic(path, func(w io.Writer) error { return WriteCSV(w, records) })
	case "json":
		return writeAtomic(path, func(w io.Writer) error { return WriteJSON(w, records) })
	case "xlsx":
		return ExportXLSX(path, records)
	default:
		return eris.Errorf("archive: unknown format %q", format)
	}
}

func writeAtomic(path string, write func(io.Writer) error) error {
	f, err := stage(path, write)
	if err != nil {
		return err
	}
	defer f.Cleanup() //nolint:errcheck

	if err := f.CloseAtomicallyReplace(); err != nil {
		return eris.Wrapf(err, "archive: replace %s", path)
	}
	return nil
}

// stage writes a pending file next to path. The caller replaces path with
// it or cleans it up.
func stage(path string, write func(io.Writer) error) (*renameio.PendingFile, error) {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, eris.Wrapf(err, "archive: create temp for %s", path)
	}
	if err := write(f); err != nil {
		f.Cleanup() //nolint:errcheck
		return nil, eris.Wrapf(err, "archive: write %s", path)
	}
	return f, nil
}
