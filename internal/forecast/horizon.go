package forecast

import "time"

// AnchorMonths is the two-year anchor the horizon counts towards
const AnchorMonths = 24

// Horizon returns the number of monthly periods to forecast after the last
// observed date: 24 minus its month number, so the forecast always ends on the
// same two-year anchor whatever the month of the last observation.
func Horizon(last time.Time) int {
	h := AnchorMonths - int(last.Month())
	if h < 0 {
		return 0
	}
	return h
}

// FutureDates returns last+1 month, ..., last+steps months
func FutureDates(last time.Time, steps int) []time.Time {
	if steps <= 0 {
		return nil
	}
	dates := make([]time.Time, steps)
	for i := range dates {
		dates[i] = AddMonths(last, i+1)
	}
	return dates
}

// AddMonths adds n calendar months, clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28) instead of overflowing.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
