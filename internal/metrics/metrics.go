package metrics

import "github.com/prometheus/client_golang/prometheus"

// Attempt outcome labels. circuit_broken is deliberately distinct from
// failure so operators can tell "endpoint is down" from "endpoint is being
// protected".
const (
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
	OutcomeCircuitBroken = "circuit_broken"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"path", "method", "status"},
	)

	DeliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_delivery_attempts_total",
			Help: "Delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	AttemptDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookrelay_attempt_duration_seconds",
			Help:    "Wall-clock duration of outbound webhook calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveriesExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_deliveries_exhausted_total",
			Help: "Deliveries that ran out of retry attempts",
		},
	)

	CircuitOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookrelay_circuit_opened_total",
			Help: "Times a per-endpoint circuit breaker opened",
		},
	)
)

func Init() {
	prometheus.MustRegister(HTTPRequests, DeliveryAttempts, AttemptDuration, DeliveriesExhausted, CircuitOpened)
}
