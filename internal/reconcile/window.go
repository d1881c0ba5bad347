package reconcile

import "time"

// Window computes the inclusive fetch window. It starts the day after the
// archive's latest date, or at earliest when the archive has no dated record,
// and ends today. The window is empty when start is after end.
func Window(latest, earliest, today time.Time) (start, end time.Time) {
	if latest.IsZero() {
		return earliest, today
	}
	return latest.AddDate(0, 0, 1), today
}

// Days lists every civil day from start to end inclusive.
func Days(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
