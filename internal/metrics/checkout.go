package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcome labels.
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeValidation        = "validation"
	OutcomeNotFound          = "product_not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeCancelled         = "cancelled"
	OutcomePersistence       = "persistence"
)

// CheckoutMetrics records checkout results. A nil *CheckoutMetrics is a no-op.
type CheckoutMetrics struct {
	outcomes             *prometheus.CounterVec
	duration             *prometheus.HistogramVec
	unitsSold            prometheus.Counter
	compensationFailures prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Checkout latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	unitsSold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_units_sold_total",
		Help: "Units removed from stock by committed sales.",
	})
	compensationFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_compensation_failures_total",
		Help: "Stock restores that failed after a partial checkout; inventory needs reconciliation.",
	})
	reg.MustRegister(outcomes, duration, unitsSold, compensationFailures)
	return &CheckoutMetrics{
		outcomes:             outcomes,
		duration:             duration,
		unitsSold:            unitsSold,
		compensationFailures: compensationFailures,
	}
}

func (m *CheckoutMetrics) Observe(outcome string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *CheckoutMetrics) AddUnitsSold(n int) {
	if m == nil || m.unitsSold == nil || n <= 0 {
		return
	}
	m.unitsSold.Add(float64(n))
}

func (m *CheckoutMetrics) IncCompensationFailure() {
	if m == nil || m.compensationFailures == nil {
		return
	}
	m.compensationFailures.Inc()
}
