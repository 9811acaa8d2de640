package model

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether an appointment may move from s to next.
// Only scheduled appointments change status.
func (s Status) CanTransition(next Status) bool {
	if s != StatusScheduled {
		return false
	}
	switch next {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type Client struct {
	Name  string
	Email string
	Phone string
}

type Appointment struct {
	ID                 string
	ShopID             string
	StaffID            string
	ServiceID          string
	Client             Client
	StartTime          time.Time
	EndTime            time.Time
	DurationMinutes    int
	Status             Status
	StatusReason       string
	ConfirmationSentAt *time.Time
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
}
