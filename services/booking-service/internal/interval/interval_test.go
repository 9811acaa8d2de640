package interval

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{at(9, 0), at(10, 0)}, Interval{at(11, 0), at(12, 0)}, false},
		{"touching", Interval{at(13, 0), at(14, 0)}, Interval{at(14, 0), at(15, 0)}, false},
		{"touching reversed", Interval{at(14, 0), at(15, 0)}, Interval{at(13, 0), at(14, 0)}, false},
		{"partial", Interval{at(9, 0), at(10, 0)}, Interval{at(9, 30), at(10, 30)}, true},
		{"nested", Interval{at(9, 0), at(12, 0)}, Interval{at(10, 0), at(10, 15)}, true},
		{"identical", Interval{at(14, 0), at(14, 45)}, Interval{at(14, 0), at(14, 45)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Fatalf("Overlaps = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]Interval{
		{at(11, 0), at(12, 0)},
		{at(9, 0), at(10, 0)},
		{at(9, 30), at(10, 30)},
		{at(10, 30), at(10, 45)},
		{at(15, 0), at(15, 0)},
	})
	want := []Interval{{at(9, 0), at(10, 45)}, {at(11, 0), at(12, 0)}}
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSubtract(t *testing.T) {
	window := Interval{at(9, 0), at(17, 0)}
	busy := []Interval{
		{at(8, 0), at(9, 30)},
		{at(12, 0), at(13, 0)},
		{at(16, 30), at(18, 0)},
	}
	got := Subtract(window, busy)
	want := []Interval{{at(9, 30), at(12, 0)}, {at(13, 0), at(16, 30)}}
	if len(got) != len(want) {
		t.Fatalf("expected %d free intervals, got %v", len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("free %d = %v, want %v", i, got[i], want[i])
		}
	}

	if free := Subtract(window, []Interval{{at(0, 0), at(23, 0)}}); len(free) != 0 {
		t.Fatalf("expected fully booked window, got %v", free)
	}
	if free := Subtract(window, nil); len(free) != 1 || free[0] != window {
		t.Fatalf("expected whole window free, got %v", free)
	}
}

func TestClip(t *testing.T) {
	window := Interval{at(9, 0), at(17, 0)}
	got := Clip(window, []Interval{{at(8, 0), at(9, 30)}, {at(18, 0), at(19, 0)}})
	if len(got) != 1 || !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(9, 30)) {
		t.Fatalf("unexpected clip result %v", got)
	}
}

func TestRoundUpToGrid(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{at(9, 0), at(9, 0)},
		{at(9, 1), at(9, 15)},
		{at(9, 14), at(9, 15)},
		{time.Date(2026, 3, 2, 9, 15, 1, 0, time.UTC), at(9, 30)},
		{at(23, 50), time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := RoundUpToGrid(tc.in, 15*time.Minute, time.UTC); !got.Equal(tc.want) {
			t.Fatalf("RoundUpToGrid(%s) = %s, want %s", tc.in.Format(time.RFC3339), got.Format(time.RFC3339), tc.want.Format(time.RFC3339))
		}
	}
}

func TestRoundUpToGrid_LocalAnchor(t *testing.T) {
	// Kathmandu is UTC+05:45, so a UTC-anchored grid would land on :15 and :45 local.
	loc, err := time.LoadLocation("Asia/Kathmandu")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	in := time.Date(2026, 3, 2, 9, 10, 0, 0, loc)
	got := RoundUpToGrid(in, 30*time.Minute, loc)
	want := time.Date(2026, 3, 2, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestRoundUpToGrid_DSTTransitions(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	utc := func(y int, m time.Month, d, h, mi int) time.Time { return time.Date(y, m, d, h, mi, 0, 0, time.UTC) }
	cases := []struct {
		name     string
		in, want time.Time
	}{
		// 2024-11-03: 01:00-02:00 local happens twice, first EDT (UTC-4) then EST (UTC-5).
		{"first 01:10 EDT", utc(2024, 11, 3, 5, 10), utc(2024, 11, 3, 5, 30)},
		{"second 01:10 EST", utc(2024, 11, 3, 6, 10), utc(2024, 11, 3, 6, 30)},
		{"01:40 EDT to 01:00 EST", utc(2024, 11, 3, 5, 40), utc(2024, 11, 3, 6, 0)},
		// 2026-03-08: 02:00-03:00 local does not exist; 01:50 EST is followed by 03:00 EDT.
		{"spring gap", utc(2026, 3, 8, 6, 50), utc(2026, 3, 8, 7, 0)},
	}
	for _, tc := range cases {
		got := RoundUpToGrid(tc.in, 30*time.Minute, loc)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: RoundUpToGrid(%s) = %s, want %s", tc.name, tc.in.In(loc), got.In(loc), tc.want.In(loc))
		}
	}
}

func TestDate_DSTSpan(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	spring := Date{Year: 2026, Month: time.March, Day: 8}
	if got := spring.Span(loc).Duration(); got != 23*time.Hour {
		t.Fatalf("spring-forward day length = %s, want 23h", got)
	}
	fall := Date{Year: 2026, Month: time.November, Day: 1}
	if got := fall.Span(loc).Duration(); got != 25*time.Hour {
		t.Fatalf("fall-back day length = %s, want 25h", got)
	}
	// 09:00 local is 13:00 UTC after the spring change and 14:00 UTC after the fall one.
	if got := spring.At(9*60, loc).UTC().Hour(); got != 13 {
		t.Fatalf("spring 09:00 local = %d UTC", got)
	}
	if got := fall.At(9*60, loc).UTC().Hour(); got != 14 {
		t.Fatalf("fall 09:00 local = %d UTC", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("weekday = %s, want Monday", d.Weekday())
	}
	if d.String() != "2026-03-02" {
		t.Fatalf("String = %s", d.String())
	}
	if _, err := ParseDate("03/02/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
}
