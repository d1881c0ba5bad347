package archive

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dps-crimelog/internal/model"
)

// WriteCSV writes the header followed by one row per record.
func WriteCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.Columns); err != nil {
		return eris.Wrap(err, "archive: write csv header")
	}
	for _, r := range records {
		if err := cw.Write(r.Values()); err != nil {
			return eris.Wrap(err, "archive: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "archive: flush csv")
	}
	return nil
}

// ReadCSV reads an archive CSV. Columns are matched by header title so a
// reordered or partial header still loads; unknown columns are ignored. An
// empty input yields no records.
func ReadCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "archive: read csv header")
	}

	pos := make([]int, len(model.Columns))
	for i, col := range model.Columns {
		pos[i] = -1
		for j, h := range header {
			if h == col {
				pos[i] = j
				break
			}
		}
	}

	records := []model.Record{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "archive: read csv row")
		}
		vals := make([]string, len(model.Columns))
		for i, p := range pos {
			if p >= 0 && p < len(row) {
				vals[i] = row[p]
			}
		}
		records = append(records, model.RecordFromValues(vals))
	}
	return records, nil
}

// WriteJSON writes records as an indented JSON array. An empty archive is
// written as [] rather than null.
func WriteJSON(w io.Writer, records []model.Record) error {
	if records == nil {
		records = []model.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "archive: encode json")
	}
	return nil
}

// ReadJSON reads an archive JSON array.
func ReadJSON(r io.Reader) ([]model.Record, error) {
	var records []model.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, eris.Wrap(err, "archive: decode json")
	}
	if records == nil {
		records = []model.Record{}
	}
	return records, nil
}
