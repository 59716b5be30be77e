package sqlite_test

import (
	"sort"
	"testing"
	"time"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/sqlite"
)

func TestFormatTime_SortsChronologically(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	times := []time.Time{
		base.Add(120 * time.Millisecond),
		base.Add(100 * time.Millisecond),
		base,
		base.Add(time.Second),
	}
	formatted := make([]string, len(times))
	for i, tm := range times {
		formatted[i] = sqlite.FormatTime(tm)
	}
	sort.Strings(formatted)

	want := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(120 * time.Millisecond), base.Add(time.Second)}
	for i, s := range formatted {
		if got := sqlite.ParseTime(s); !got.Equal(want[i]) {
			t.Errorf("position %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestParseTime_Fallbacks(t *testing.T) {
	t.Parallel()

	if got := sqlite.ParseTime("2025-03-01T12:00:00Z"); got.IsZero() {
		t.Error("expected RFC3339 value to parse")
	}
	if got := sqlite.ParseTime("yesterday"); !got.IsZero() {
		t.Errorf("expected zero time for garbage, got %v", got)
	}
}
