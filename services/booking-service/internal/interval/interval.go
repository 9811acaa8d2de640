// Package interval holds the half-open time interval arithmetic shared by
// availability and booking. All instants are compared as absolute times; a
// *time.Location is only consulted where wall-clock boundaries matter.
package interval

import (
	"sort"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Contains reports whether other lies entirely inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Overlaps reports whether a and b share an instant. Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if Overlaps(iv, o) {
			return true
		}
	}
	return false
}

// Merge returns the union of ivs as sorted, non-overlapping intervals.
// Adjacent intervals are joined. Empty intervals are dropped.
func Merge(ivs []Interval) []Interval {
	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes busy from window and returns the remaining free sub-intervals in order.
func Subtract(window Interval, busy []Interval) []Interval {
	if !window.Valid() {
		return nil
	}
	var free []Interval
	cursor := window.Start
	for _, b := range Merge(busy) {
		if !b.End.After(cursor) {
			continue
		}
		if !b.Start.Before(window.End) {
			break
		}
		if b.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: b.Start})
		}
		cursor = b.End
	}
	if cursor.Before(window.End) {
		free = append(free, Interval{Start: cursor, End: window.End})
	}
	return free
}

// Clip returns the parts of ivs that fall inside window.
func Clip(window Interval, ivs []Interval) []Interval {
	var out []Interval
	for _, iv := range ivs {
		if !Overlaps(window, iv) {
			continue
		}
		if iv.Start.Before(window.Start) {
			iv.Start = window.Start
		}
		if iv.End.After(window.End) {
			iv.End = window.End
		}
		out = append(out, iv)
	}
	return out
}
