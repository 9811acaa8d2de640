package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	rec := Record{
		ID:            7,
		EventID:       "0b0b8f0e-2a41-4f3c-9d0c-8d1f1d4f1a11",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
		EventType:     EventAppointmentBooked,
		Payload:       []byte(`{"appointment_id":"appt-1"}`),
		Trace:         otelx.TraceContext{Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}
	msg := toMessage(context.Background(), rec)

	if msg.Topic != EventAppointmentBooked {
		t.Fatalf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != "appt-1" {
		t.Fatalf("key = %q", msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != rec.EventID {
		t.Fatal("missing event_id header")
	}
	if kafkax.HeaderValue(msg.Headers, "aggregate_type") != "appointment" {
		t.Fatal("missing aggregate_type header")
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != rec.Trace.Traceparent {
		t.Fatalf("traceparent = %q, want %q", got, rec.Trace.Traceparent)
	}
}

func TestNewEvent_FormatsTimes(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	evt, err := NewEvent("appointment", "appt-1", EventReminderSent, map[string]any{
		"appointment_id": "appt-1",
		"sent_at":        time.Date(2026, 3, 1, 12, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["sent_at"] != "2026-03-01T10:00:00Z" {
		t.Fatalf("sent_at = %q", payload["sent_at"])
	}
	if evt.EventType != EventReminderSent || evt.AggregateID != "appt-1" {
		t.Fatalf("unexpected envelope %+v", evt)
	}
}
