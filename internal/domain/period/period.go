// Package period resolves the usage window a counter belongs to.
package period

import "time"

// keyLayout is the compact UTC form used in storage keys.
const keyLayout = "20060102T150405Z"

// Period is a half-open usage window [Start, End) in UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && t.Before(p.End)
}

// Equal reports whether both windows share the same bounds.
func (p Period) Equal(o Period) bool {
	return p.Start.Equal(o.Start) && p.End.Equal(o.End)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool { return p.Start.IsZero() && p.End.IsZero() }

// Key returns the storage key fragment identifying this period.
func (p Period) Key() string { return p.Start.UTC().Format(keyLayout) }

// Rolled reports whether next is a later window than prev.
func Rolled(prev, next Period) bool {
	return next.Start.After(prev.Start)
}

// CalendarMonth returns [1st 00:00 UTC, next 1st) around now.
func CalendarMonth(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// Anchored returns the one-month window, rolling forward from anchor, that contains now.
// Anchor days past the end of a short month are clamped (Jan 31 -> Feb 28 -> Mar 31).
func Anchored(now, anchor time.Time) Period {
	now = now.UTC()
	anchor = anchor.UTC()

	months := (now.Year()-anchor.Year())*12 + int(now.Month()) - int(anchor.Month())
	start := addMonths(anchor, months)
	if start.After(now) {
		months--
		start = addMonths(anchor, months)
	}
	return Period{Start: start, End: addMonths(anchor, months+1)}
}

func addMonths(anchor time.Time, k int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(k), 1, 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := anchor.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), time.UTC)
}
