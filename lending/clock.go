package lending

import (
	"time"
)

// =============================================================================
// CLOCK - Injectable "now" for penalty evaluation
// =============================================================================

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// =============================================================================
// CALENDAR ARITHMETIC
// =============================================================================

const day = 24 * time.Hour

// AddMonthsClamped advances t by n calendar months, keeping the day of month
// when it exists and clamping to the last day of the target month otherwise:
//
//	Jan 31 + 1 month = Feb 28 (Feb 29 in leap years)
//	Jan 31 + 3 months = Apr 30
//	Mar 15 + 1 month = Apr 15
//
// time.AddDate would instead roll Jan 31 + 1 month over to early March.
// Time of day and location are preserved.
func AddMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := DaysInMonth(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WholeDaysBetween returns the whole days elapsed from `from` to `to`,
// truncated toward zero. Negative when `to` is before `from`.
func WholeDaysBetween(from, to time.Time) int {
	return int(to.Sub(from) / day)
}
