package availability

import (
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/interval"
)

// AvailableSlots returns slot start times inside the open windows where a booking of
// length duration fits without overlapping any busy interval. Starts sit on the
// granularity grid anchored at local midnight in loc and never before notBefore.
//
// Slots never span a busy interval: each one must fit inside a single free sub-interval.
func AvailableSlots(open []interval.Interval, busy []interval.Interval, duration, granularity time.Duration, notBefore time.Time, loc *time.Location) []time.Time {
	if duration <= 0 || granularity <= 0 {
		return nil
	}

	var slots []time.Time
	for _, window := range interval.Merge(open) {
		for _, free := range interval.Subtract(window, busy) {
			start := free.Start
			if start.Before(notBefore) {
				start = notBefore
			}
			for t := interval.RoundUpToGrid(start, granularity, loc); !t.Add(duration).After(free.End); t = interval.RoundUpToGrid(t.Add(granularity), granularity, loc) {
				slots = append(slots, t)
			}
		}
	}
	return slots
}
