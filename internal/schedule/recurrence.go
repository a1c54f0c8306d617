// Package schedule expands assignment settings into concrete session
// dates and keeps the calendar honest over time (missed-session sweep).
package schedule

import "time"

// Frequency selects how the date range is expanded.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// DefaultWindowDays bounds the expansion when no end date is given.
const DefaultWindowDays = 30

// Expand turns (start, end, frequency, weekday set) into an ordered
// sequence of civil dates in loc.
//
//   - daily: every date in [start, end].
//   - weekly: every date in [start, end] whose weekday is in days.
//
// A zero end defaults to start + DefaultWindowDays. The result is
// strictly increasing and may be empty; no matching date is a valid
// "nothing to schedule" outcome, not an error.
func Expand(start, end time.Time, freq Frequency, days []time.Weekday, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	first := civilDate(start, loc)
	var last time.Time
	if end.IsZero() {
		last = first.AddDate(0, 0, DefaultWindowDays)
	} else {
		last = civilDate(end, loc)
	}

	wanted := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		wanted[d] = true
	}

	var dates []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		switch freq {
		case FrequencyDaily:
			dates = append(dates, d)
		case FrequencyWeekly:
			if wanted[d.Weekday()] {
				dates = append(dates, d)
			}
		}
	}
	return dates
}

// Cap truncates dates to at most n entries. Callers that want a fixed
// number of sessions rather than a fixed window (for example,
// frequency × 4 occurrences) bound the expansion with this.
func Cap(dates []time.Time, n int) []time.Time {
	if n >= 0 && len(dates) > n {
		return dates[:n]
	}
	return dates
}

// civilDate truncates t to midnight of its calendar day in loc.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
