package observability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for pipeline operations.
const TracerName = "eventhint"

// Span attribute keys
const (
	AttrUserID     = "user_id"
	AttrMessageID  = "message_id"
	AttrEventID    = "event_id"
	AttrProvider   = "provider"
	AttrStage      = "stage"
	AttrMethod     = "method"
	AttrConfidence = "confidence"
	AttrErrorType  = "error_type"
	AttrRetryable  = "retryable"
)

// Span names
const (
	SpanProcessMessage = "pipeline.process_message"
	SpanStageOCR       = "pipeline.stage.ocr"
	SpanStageExtract   = "pipeline.stage.extract"
	SpanStageMerge     = "pipeline.stage.merge"
	SpanStagePersist   = "pipeline.stage.persist"
	SpanSyncEvent      = "calsync.sync_event"
	SpanUndoEvent      = "calsync.undo_event"
)

// Tracer provides distributed tracing for pipeline and sync operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartMessageSpan starts a root span for processing a message.
func (t *Tracer) StartMessageSpan(ctx context.Context, userID, messageID uuid.UUID, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProcessMessage,
		trace.WithAttributes(
			attribute.String(AttrUserID, userID.String()),
			attribute.String(AttrMessageID, messageID.String()),
			attribute.String(AttrProvider, provider),
		),
	)
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("pipeline.stage.%s", stage),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
		),
	)
}

// StartSyncSpan starts a span for a calendar sync operation.
func (t *Tracer) StartSyncSpan(ctx context.Context, eventID uuid.UUID) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSyncEvent,
		trace.WithAttributes(
			attribute.String(AttrEventID, eventID.String()),
		),
	)
}

// RecordSpanError records an error on the span with retry metadata.
func RecordSpanError(span trace.Span, err error, errorType string, retryable bool) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	span.RecordError(err)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
