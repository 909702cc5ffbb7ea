// Package observability provides Prometheus metrics and OTel tracing
// for the ingestion pipeline and calendar sync engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for message processing
// and calendar sync.
type PipelineMetrics struct {
	// Queue metrics
	QueueItemsTotal *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	DLQItemsTotal   *prometheus.CounterVec

	// Processing metrics
	MessagesProcessedTotal *prometheus.CounterVec
	StageSeconds           *prometheus.HistogramVec
	EventsExtractedTotal   *prometheus.CounterVec
	EventConfidence        *prometheus.HistogramVec
	AutoApprovalsTotal     *prometheus.CounterVec

	// OCR metrics
	OCRRequestsTotal *prometheus.CounterVec
	OCRConfidence    *prometheus.HistogramVec

	// LLM metrics
	LLMCallsTotal     *prometheus.CounterVec
	LLMLatencySeconds *prometheus.HistogramVec

	// Sync metrics
	SyncOperationsTotal *prometheus.CounterVec
	SyncLatencySeconds  *prometheus.HistogramVec
}

// DefaultPipelineMetrics creates metrics on the default registerer.
func DefaultPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

// NewPipelineMetrics creates a new set of pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		QueueItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_queue_items_total",
				Help: "Total jobs entering each queue",
			},
			[]string{"queue", "priority"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventhint_queue_depth",
				Help: "Current queue depth",
			},
			[]string{"queue"},
		),
		DLQItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_dlq_items_total",
				Help: "Total jobs moved to the dead letter queue",
			},
			[]string{"queue", "reason"},
		),

		MessagesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_messages_processed_total",
				Help: "Total messages processed by the pipeline",
			},
			[]string{"provider", "status"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhint_stage_seconds",
				Help:    "Pipeline stage latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		EventsExtractedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_events_extracted_total",
				Help: "Total events extracted, by method",
			},
			[]string{"method", "type"},
		),
		EventConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhint_event_confidence",
				Help:    "Confidence scores of extracted events",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"method"},
		),
		AutoApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_auto_approvals_total",
				Help: "Events auto-approved vs queued for review",
			},
			[]string{"decision"},
		),

		OCRRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_ocr_requests_total",
				Help: "OCR requests by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		OCRConfidence: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhint_ocr_confidence",
				Help:    "OCR result confidence",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 1.0},
			},
			[]string{"provider"},
		),

		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_llm_calls_total",
				Help: "LLM extraction calls by outcome",
			},
			[]string{"model", "status"},
		),
		LLMLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhint_llm_latency_seconds",
				Help:    "LLM call latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"model"},
		),

		SyncOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhint_sync_operations_total",
				Help: "Calendar sync operations by outcome",
			},
			[]string{"operation", "status"},
		),
		SyncLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhint_sync_latency_seconds",
				Help:    "Calendar sync latency",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}
}

// RecordQueueEnqueue records a job entering a queue.
func (m *PipelineMetrics) RecordQueueEnqueue(queue, priority string) {
	m.QueueItemsTotal.WithLabelValues(queue, priority).Inc()
}

// RecordQueueDepth sets the current queue depth.
func (m *PipelineMetrics) RecordQueueDepth(queue string, depth float64) {
	m.QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordDLQItem records a job moved to the dead letter queue.
func (m *PipelineMetrics) RecordDLQItem(queue, reason string) {
	m.DLQItemsTotal.WithLabelValues(queue, reason).Inc()
}

// RecordMessageProcessed records a completed pipeline run.
func (m *PipelineMetrics) RecordMessageProcessed(provider, status string) {
	m.MessagesProcessedTotal.WithLabelValues(provider, status).Inc()
}

// RecordStageLatency records one stage's duration.
func (m *PipelineMetrics) RecordStageLatency(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordEventExtracted records one extracted event.
func (m *PipelineMetrics) RecordEventExtracted(method, eventType string, confidence float64) {
	m.EventsExtractedTotal.WithLabelValues(method, eventType).Inc()
	m.EventConfidence.WithLabelValues(method).Observe(confidence)
}

// RecordAutoApproval records the approval routing decision.
func (m *PipelineMetrics) RecordAutoApproval(decision string) {
	m.AutoApprovalsTotal.WithLabelValues(decision).Inc()
}

// RecordOCR records an OCR request and its confidence.
func (m *PipelineMetrics) RecordOCR(provider, status string, confidence float64) {
	m.OCRRequestsTotal.WithLabelValues(provider, status).Inc()
	if status == "ok" {
		m.OCRConfidence.WithLabelValues(provider).Observe(confidence)
	}
}

// RecordLLMCall records an LLM extraction call.
func (m *PipelineMetrics) RecordLLMCall(model, status string, seconds float64) {
	m.LLMCallsTotal.WithLabelValues(model, status).Inc()
	m.LLMLatencySeconds.WithLabelValues(model).Observe(seconds)
}

// RecordSync records a calendar sync operation.
func (m *PipelineMetrics) RecordSync(operation, status string, seconds float64) {
	m.SyncOperationsTotal.WithLabelValues(operation, status).Inc()
	m.SyncLatencySeconds.WithLabelValues(operation).Observe(seconds)
}
