package model

import "time"

// Shop carries the per-shop scheduling settings. A nil granularity or lead
// means the service-wide default applies.
type Shop struct {
	ID              string
	Name            string
	Timezone        string
	SlotGranularity *time.Duration
	MinLead         *time.Duration
}

func (s Shop) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type Service struct {
	ID              string
	ShopID          string
	Name            string
	DurationMinutes int
	Active          bool
}

type Staff struct {
	ID     string
	ShopID string
	Name   string
	Active bool
}

// OpenInterval is a business-hours interval in shop-local minutes of the day.
type OpenInterval struct {
	StartMinute int
	EndMinute   int
}

// BusinessHours is the opening schedule of one weekday. An empty StaffID means
// the shop-wide schedule.
type BusinessHours struct {
	StaffID   string
	Weekday   time.Weekday
	Intervals []OpenInterval
}

type TimeOff struct {
	ID      string
	StaffID string
	Start   time.Time
	End     time.Time
	Reason  string
}

type TimeSlot struct {
	Start   time.Time
	End     time.Time
	StaffID string
}
