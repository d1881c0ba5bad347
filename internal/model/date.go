package model

import (
	"regexp"
	"strconv"
	"time"
)

// datePattern matches the first MM/DD/YY or MM/DD/YYYY shaped substring.
var datePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{2,4})`)

// ParseDate extracts a civil date from loosely formatted text such as
// "09/05/24", "9/5/2024 00:00" or "Reported 09/05/2024". Two-digit years map
// to 20YY. The result is midnight UTC. ok is false when no valid date is found.
func ParseDate(s string) (t time.Time, ok bool) {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	switch len(m[3]) {
	case 2:
		year += 2000
	case 4:
	default:
		return time.Time{}, false
	}

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (02/30 -> 03/01); reject instead.
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// RepresentativeDate picks the record's date by field priority: reported,
// then range start, then range end.
func (r Record) RepresentativeDate() (time.Time, bool) {
	for _, s := range []string{r.DateReported, r.DateFrom, r.DateTo} {
		if d, ok := ParseDate(s); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// CivilDate truncates t to midnight UTC of its calendar day in t's location.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
