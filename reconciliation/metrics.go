package reconciliation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_payment_reconciliations_total",
			Help: "Payment reconciliation outcomes",
		},
		[]string{"operation", "outcome"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_side_effect_failures_total",
			Help: "Post-commit side effects that failed",
		},
		[]string{"effect"},
	)
)

func recordTransition(operation, outcome string) {
	transitionsTotal.WithLabelValues(operation, outcome).Inc()
}
