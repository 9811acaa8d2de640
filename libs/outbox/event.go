package outbox

import (
	"encoding/json"
	"time"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventReminderSent             = "reminder.sent.v1"
	EventReminderFailed           = "reminder.failed.v1"
)

// NewEvent marshals payload as JSON. Time values are rendered RFC 3339 in UTC.
func NewEvent(aggregateType, aggregateID, eventType string, payload map[string]any) (Event, error) {
	for k, v := range payload {
		if t, ok := v.(time.Time); ok {
			payload[k] = t.UTC().Format(time.RFC3339)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
