package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lessonforge"

var (
	// OutlineDispositions counts outlines reaching a terminal status.
	// Labels: status (completed, failed, error)
	OutlineDispositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outline_dispositions_total",
			Help:      "Outline requests reaching a terminal status",
		},
		[]string{"status"},
	)

	// OutlineRejections counts decision rejections by reason code.
	OutlineRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "outline_rejections_total",
			Help:      "Outline rejections by decision code",
		},
		[]string{"code"},
	)

	// StageDuration tracks how long each orchestrator stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of orchestrator stages in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"stage", "event"},
	)

	// LessonOutcomes counts lesson units reaching a terminal status.
	LessonOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lesson",
			Name:      "outcomes_total",
			Help:      "Lesson units reaching a terminal status",
		},
		[]string{"status"},
	)

	// LessonAttempts records validation attempts used per finished unit.
	LessonAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lesson",
			Name:      "validation_attempts",
			Help:      "Validation attempts used by a lesson unit",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
	)

	// ValidationFindings counts static validation errors by category and code.
	ValidationFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "staticcheck",
			Name:      "findings_total",
			Help:      "Static validation errors reported on generated source",
		},
		[]string{"category", "code"},
	)

	// ProviderCalls counts generation provider calls by operation and outcome.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Generation provider calls",
		},
		[]string{"op", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Generation provider call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"op"},
	)

	// InFlightTasks is the number of supervised tasks currently running.
	// Labels: kind (outline, lesson)
	InFlightTasks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "inflight_tasks",
			Help:      "Supervised tasks currently running",
		},
		[]string{"kind"},
	)

	// StatusAppends counts audit records written.
	StatusAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "status_appends_total",
			Help:      "Status records appended to the audit log",
		},
		[]string{"entity_type", "status"},
	)

	// HTTPRequests counts API requests by route template and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SSEClients is the number of open event streams.
	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "sse_clients",
			Help:      "Open status event streams",
		},
	)
)

func ObserveProviderCall(op, outcome string, d time.Duration) {
	ProviderCalls.WithLabelValues(op, outcome).Inc()
	ProviderLatency.WithLabelValues(op).Observe(d.Seconds())
}

func ObserveStage(stage, event string, d time.Duration) {
	StageDuration.WithLabelValues(stage, event).Observe(d.Seconds())
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
