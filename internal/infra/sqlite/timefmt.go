package sqlite

import "time"

// TimeLayout is the TEXT format used for every timestamp column. Fixed-width
// fractional seconds keep lexicographic order equal to chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now returns the current time formatted with FormatTime.
func Now() string {
	return FormatTime(time.Now())
}

// ParseTime parses a stored timestamp. It also accepts plain RFC3339 values;
// unparseable input yields the zero time.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
