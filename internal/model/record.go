package model

// Column titles of the persisted archive, in schema order. The same titles
// are the CSV header and the JSON object keys.
const (
	ColDateReported    = "Date Reported"
	ColEventID         = "Event #"
	ColCaseID          = "Case #"
	ColOffense         = "Offense"
	ColInitialIncident = "Initial Incident"
	ColFinalIncident   = "Final Incident"
	ColDateFrom        = "Date From"
	ColDateTo          = "Date To"
	ColLocation        = "Location"
	ColDisposition     = "Disposition"
	ColSourceURL       = "URL"
)

// Columns is the fixed archive schema.
var Columns = []string{
	ColDateReported,
	ColEventID,
	ColCaseID,
	ColOffense,
	ColInitialIncident,
	ColFinalIncident,
	ColDateFrom,
	ColDateTo,
	ColLocation,
	ColDisposition,
	ColSourceURL,
}

// DataColumns is the number of columns extracted from a document; the
// provenance URL is appended after them.
const DataColumns = 10

// Record is one incident-log entry. Field order matches Columns, which keeps
// the JSON object keys in schema order.
type Record struct {
	DateReported    string `json:"Date Reported"`
	EventID         string `json:"Event #"`
	CaseID          string `json:"Case #"`
	Offense         string `json:"Offense"`
	InitialIncident string `json:"Initial Incident"`
	FinalIncident   string `json:"Final Incident"`
	DateFrom        string `json:"Date From"`
	DateTo          string `json:"Date To"`
	Location        string `json:"Location"`
	Disposition     string `json:"Disposition"`
	SourceURL       string `json:"URL"`
}

// Values returns the record's fields in schema order.
func (r Record) Values() []string {
	return []string{
		r.DateReported,
		r.EventID,
		r.CaseID,
		r.Offense,
		r.InitialIncident,
		r.FinalIncident,
		r.DateFrom,
		r.DateTo,
		r.Location,
		r.Disposition,
		r.SourceURL,
	}
}

// RecordFromValues maps a positional row onto the schema. Missing trailing
// values are empty; values past the schema width are dropped.
func RecordFromValues(v []string) Record {
	at := func(i int) string {
		if i < len(v) {
			return v[i]
		}
		return ""
	}
	return Record{
		DateReported:    at(0),
		EventID:         at(1),
		CaseID:          at(2),
		Offense:         at(3),
		InitialIncident: at(4),
		FinalIncident:   at(5),
		DateFrom:        at(6),
		DateTo:          at(7),
		Location:        at(8),
		Disposition:     at(9),
		SourceURL:       at(10),
	}
}

// HasEventID reports whether the record carries a dedup key.
func (r Record) HasEventID() bool {
	return r.EventID != ""
}
