package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for GeneratorCalls.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	GeneratorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthshield_generator_calls_total",
			Help: "Calls to the language model by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	QuestionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthshield_questions_total",
			Help: "Survey questions produced, by source (model or fallback bank)",
		},
		[]string{"source"},
	)

	Analyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthshield_analyses_total",
			Help: "Discrepancy analyses by branch",
		},
		[]string{"branch"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "truthshield_analysis_duration_seconds",
			Help:    "Duration of discrepancy analyses in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"branch"},
	)

	BundleValidationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "truthshield_bundle_validation_failures_total",
			Help: "Analysis bundles that failed schema validation",
		},
	)

	IntakeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthshield_intake_transitions_total",
			Help: "Intake state transitions by operation and result",
		},
		[]string{"operation", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "truthshield_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
