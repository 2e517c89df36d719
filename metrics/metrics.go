package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procure_agent_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	IntentClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procure_agent_intent_classifications_total",
			Help: "Intent classifications by core intent and decision path",
		},
		[]string{"core_intent", "path"},
	)

	RiskAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procure_agent_risk_assessments_total",
			Help: "Risk assessments by strategy and level",
		},
		[]string{"mode", "level", "fail_safe"},
	)

	RetrievalResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procure_agent_retrieval_total",
			Help: "Retrieval augmentation outcomes",
		},
		[]string{"outcome"},
	)

	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procure_agent_generation_attempts_total",
			Help: "Model invocation attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procure_agent_generation_latency_seconds",
			Help:    "End-to-end generateResponse latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"provider"},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procure_agent_persist_failures_total",
			Help: "Background message persistence failures",
		},
	)
)
