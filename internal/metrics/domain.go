package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by channel and recorded status.",
		},
		[]string{"channel", "status"},
	)

	aiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobgate",
			Subsystem: "ai",
			Name:      "call_duration_seconds",
			Help:      "AI service call latency including retries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint", "outcome"},
	)

	aiAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "ai",
			Name:      "attempts_total",
			Help:      "Individual HTTP attempts made to the AI service.",
		},
		[]string{"endpoint"},
	)

	lifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobgate",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Committed lifecycle transitions.",
		},
		[]string{"entity", "to"},
	)
)

// ObserveDelivery counts one recorded notification outcome.
func ObserveDelivery(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// ObserveAICall records a completed AI gateway call.
func ObserveAICall(endpoint, outcome string, elapsed time.Duration) {
	aiCallDuration.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}

// ObserveAIAttempt counts a single outbound attempt.
func ObserveAIAttempt(endpoint string) {
	aiAttemptsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveTransition counts a committed state change such as company_request -> approved.
func ObserveTransition(entity, to string) {
	lifecycleTransitions.WithLabelValues(entity, to).Inc()
}
