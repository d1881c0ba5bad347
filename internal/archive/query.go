package archive

import (
	"time"

	"github.com/sells-group/dps-crimelog/internal/model"
)

// Query filters archive records for read-only publication.
type Query struct {
	EventID string
	// Since keeps records whose representative date is on or after it.
	// Undated records are excluded when Since is set.
	Since time.Time
	// Limit caps the result; zero means no limit.
	Limit int
}

// Filter returns the records matching q, preserving archive order.
func Filter(records []model.Record, q Query) []model.Record {
	out := []model.Record{}
	for _, r := range records {
		if q.EventID != "" && r.EventID != q.EventID {
			continue
		}
		if !q.Since.IsZero() {
			d, ok := r.RepresentativeDate()
			if !ok || d.Before(q.Since) {
				continue
			}
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out
}
