package interval

import "time"

// RoundUpToGrid returns the first grid boundary at or after t. The grid is
// anchored on wall-clock midnight in loc, so a 30 minute grid yields :00 and
// :30 local times on every day. On a daylight-saving day a boundary that falls
// in a skipped hour does not exist, and one in a repeated hour exists twice.
func RoundUpToGrid(t time.Time, granularity time.Duration, loc *time.Location) time.Time {
	step := int64(granularity / time.Minute)
	if step <= 0 {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	minute := int64(local.Hour()*60 + local.Minute())
	exact := local.Second() == 0 && local.Nanosecond() == 0
	if exact && minute%step == 0 {
		return t
	}
	y, m, d := local.Date()
	for next := (minute/step + 1) * step; ; next += step {
		if at, ok := wallClockAfter(y, m, d, int(next), loc, t); ok {
			return at
		}
	}
}

// wallClockAfter returns the earliest instant after t whose local time in loc is
// minuteOfDay minutes past midnight of the given day. time.Date picks one offset
// for ambiguous times, so the instant one zone transition later is tried too.
func wallClockAfter(y int, m time.Month, d, minuteOfDay int, loc *time.Location, t time.Time) (time.Time, bool) {
	want := time.Date(y, m, d, 0, minuteOfDay, 0, 0, time.UTC)
	first := time.Date(y, m, d, 0, minuteOfDay, 0, 0, loc)
	_, before := first.Add(-12 * time.Hour).Zone()
	_, after := first.Add(12 * time.Hour).Zone()
	shift := time.Duration(before-after) * time.Second
	if shift < 0 {
		shift = -shift
	}

	candidates := []time.Time{first}
	if shift != 0 {
		candidates = append(candidates, first.Add(-shift), first.Add(shift))
	}
	var best time.Time
	found := false
	for _, c := range candidates {
		if !c.After(t) || !sameWallClock(c.In(loc), want) {
			continue
		}
		if !found || c.Before(best) {
			best, found = c, true
		}
	}
	return best, found
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}

// Date is a calendar day in a shop's local time.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// At returns the instant at minuteOfDay wall-clock minutes after local midnight.
// 1440 maps to the following midnight.
func (d Date) At(minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minuteOfDay, 0, 0, loc)
}

// Span covers the whole local day, which is not always 24h long.
func (d Date) Span(loc *time.Location) Interval {
	return Interval{Start: d.At(0, loc), End: d.At(24*60, loc)}
}
