package kafkax

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("empty input should yield nil")
	}
}

func TestEventMetaHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := EventMeta{
		EventID:       "evt-1",
		EventType:     "booking.appointment.booked.v1",
		AggregateType: "appointment",
		AggregateID:   "appt-1",
	}.Headers(ctx)

	want := map[string]string{
		"event_id":       "evt-1",
		"event_type":     "booking.appointment.booked.v1",
		"aggregate_type": "appointment",
		"aggregate_id":   "appt-1",
		"traceparent":    "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	for k, v := range want {
		if got := HeaderValue(headers, k); got != v {
			t.Fatalf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestEventMetaHeaders_Untraced(t *testing.T) {
	headers := EventMeta{EventID: "e", EventType: "reminder.sent.v1"}.Headers(context.Background())
	if len(headers) != 2 {
		t.Fatalf("headers = %+v", headers)
	}
}

func TestReadyCheck_NoBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
