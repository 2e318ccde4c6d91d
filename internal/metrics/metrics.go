// Package metrics provides Prometheus metrics for lazkit workflows and the hub.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// === Workflow ===

	// WorkflowSteps counts pipeline steps by step and outcome (ok, error, skipped)
	WorkflowSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazkit_workflow_steps_total",
			Help: "Contribution pipeline steps by step and outcome",
		},
		[]string{"step", "outcome"},
	)

	// StepDuration tracks pipeline step duration
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazkit_workflow_step_duration_seconds",
			Help:    "Contribution pipeline step duration in seconds",
			Buckets: []float64{0.05, 0.25, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"step"},
	)

	// === Chain ===

	// ChainTransactions counts contract transactions by contract, method and result
	ChainTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazkit_chain_transactions_total",
			Help: "Contract transactions by contract, method and result",
		},
		[]string{"contract", "method", "result"}, // success, failed, error
	)

	// === Settlement ===

	// SettlementHeaders counts settlement header sets built, by node kind
	SettlementHeaders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazkit_settlement_headers_total",
			Help: "Settlement header sets signed by node kind",
		},
		[]string{"kind"}, // inference, query
	)

	// === Inference ===

	// InferenceTokens counts tokens reported by inference endpoints
	InferenceTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazkit_inference_tokens_total",
			Help: "Tokens reported by inference endpoints by operation and direction",
		},
		[]string{"operation", "direction"}, // prompt, completion
	)

	// === Hub ===

	// HubRequests counts hub HTTP requests by route and status
	HubRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazkit_hub_requests_total",
			Help: "Hub HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	// HubLatency tracks hub request latency
	HubLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazkit_hub_request_duration_seconds",
			Help:    "Hub request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"route"},
	)

	// RateLimitHits counts requests rejected by the hub rate limiter
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazkit_hub_rate_limit_hits_total",
			Help: "Hub requests rejected by the per-client rate limiter",
		},
	)
)

// RecordStep records a pipeline step outcome and its duration.
func RecordStep(step, outcome string, d time.Duration) {
	WorkflowSteps.WithLabelValues(step, outcome).Inc()
	StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordTokens records prompt and completion tokens for an operation.
func RecordTokens(operation string, prompt, completion int) {
	InferenceTokens.WithLabelValues(operation, "prompt").Add(float64(prompt))
	InferenceTokens.WithLabelValues(operation, "completion").Add(float64(completion))
}

// RecordHubRequest records a served hub request.
func RecordHubRequest(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HubRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HubLatency.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRateLimit records a rate-limited request.
func RecordRateLimit() {
	RateLimitHits.Inc()
}
