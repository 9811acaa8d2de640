package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span in a form that can be stored
// next to an outbox row and resumed when the row is published.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// CaptureTraceContext returns the trace context active in ctx, or the zero value.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Traceparent: carrier.Get("traceparent"), Tracestate: carrier.Get("tracestate")}
}

func (t TraceContext) IsZero() bool {
	return t.Traceparent == "" && t.Tracestate == ""
}

// Resume returns ctx carrying t as its remote parent span.
func (t TraceContext) Resume(ctx context.Context) context.Context {
	if t.IsZero() {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": t.Traceparent,
		"tracestate":  t.Tracestate,
	})
}
