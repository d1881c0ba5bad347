package reconcile

import (
	"sort"
	"time"

	"github.com/sells-group/dps-crimelog/internal/model"
)

// Dedup drops records whose non-empty event id is already in seen, keeping
// the first occurrence. seen grows with every accepted id. Records without an
// event id are always kept.
func Dedup(records []model.Record, seen map[string]struct{}) (accepted []model.Record, duplicates int) {
	accepted = make([]model.Record, 0, len(records))
	for _, r := range records {
		if r.HasEventID() {
			if _, ok := seen[r.EventID]; ok {
				duplicates++
				continue
			}
			seen[r.EventID] = struct{}{}
		}
		accepted = append(accepted, r)
	}
	return accepted, duplicates
}

// SortNewestFirst stable-sorts records by representative date, newest first.
// Undated records sort as today.
func SortNewestFirst(records []model.Record, today time.Time) {
	dateOf := func(r model.Record) time.Time {
		if d, ok := r.RepresentativeDate(); ok {
			return d
		}
		return today
	}
	sort.SliceStable(records, func(i, j int) bool {
		return dateOf(records[i]).After(dateOf(records[j]))
	})
}

// Merge places the new block before the existing archive. Existing order is
// kept as is.
func Merge(newest, existing []model.Record) []model.Record {
	out := make([]model.Record, 0, len(newest)+len(existing))
	out = append(out, newest...)
	return append(out, existing...)
}
