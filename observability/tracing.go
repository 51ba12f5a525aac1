package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hookline/hookline"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new dispatcher tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartAttemptSpan starts a new span for a delivery attempt.
func (t *Tracer) StartAttemptSpan(ctx context.Context, deliveryID, eventType, registrationID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hookline.delivery",
		trace.WithAttributes(
			attribute.String("hookline.delivery_id", deliveryID),
			attribute.String("hookline.event_type", eventType),
			attribute.String("hookline.registration_id", registrationID),
		),
	)
}

// EndAttemptSpan ends a delivery span with result attributes.
func (t *Tracer) EndAttemptSpan(span trace.Span, statusCode, latencyMs int, err string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("hookline.latency_ms", latencyMs),
	)
	if err != "" {
		span.SetAttributes(attribute.String("hookline.error", err))
	}
	span.End()
}
