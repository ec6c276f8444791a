package buildnumber

import (
	"testing"
	"time"
)

func TestFrom_FormatsMinutePrecision(t *testing.T) {
	ts := time.Date(2025, time.March, 7, 9, 5, 59, 999, time.Local)
	if got, want := From(ts), int64(202503070905); got != want {
		t.Fatalf("From=%d, want %d", got, want)
	}
}

func TestFrom_StableWithinMinute(t *testing.T) {
	a := time.Date(2024, time.December, 31, 23, 59, 0, 0, time.Local)
	b := a.Add(59 * time.Second)
	if From(a) != From(b) {
		t.Fatalf("expected equal numbers within one minute: %d vs %d", From(a), From(b))
	}
}

// Later calendar minutes must always produce strictly larger numbers, including
// across hour, day, month and year boundaries.
func TestFrom_StrictlyIncreasingAcrossMinutes(t *testing.T) {
	cases := []time.Time{
		time.Date(2024, time.February, 28, 23, 59, 30, 0, time.Local),
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.Local),
		time.Date(2024, time.December, 31, 23, 59, 0, 0, time.Local),
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local),
		time.Date(2025, time.January, 1, 0, 1, 0, 0, time.Local),
		time.Date(2025, time.January, 1, 10, 0, 0, 0, time.Local),
	}
	for i := 1; i < len(cases); i++ {
		prev, cur := From(cases[i-1]), From(cases[i])
		if cur <= prev {
			t.Fatalf("case %d: %d not greater than %d", i, cur, prev)
		}
	}
}

func TestNow_TwelveDigits(t *testing.T) {
	n := Now()
	if n < 100000000000 || n > 999999999999 {
		t.Fatalf("Now=%d, want 12 digits", n)
	}
}
