package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.Observe(OutcomeSuccess, 20*time.Millisecond)
	m.Observe(OutcomeSuccess, 30*time.Millisecond)
	m.Observe(OutcomeInsufficientStock, time.Millisecond)
	m.AddUnitsSold(3)
	m.IncCompensationFailure()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_total", "outcome", OutcomeSuccess); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_total", "outcome", OutcomeInsufficientStock); err != nil {
		t.Fatalf("fetch insufficient: %v", err)
	} else if got != 1 {
		t.Fatalf("expected insufficient=1, got %f", got)
	}
	if got := plainCounter(mfs, "checkout_units_sold_total"); got != 3 {
		t.Fatalf("expected units=3, got %f", got)
	}
	if got := plainCounter(mfs, "checkout_compensation_failures_total"); got != 1 {
		t.Fatalf("expected compensation failures=1, got %f", got)
	}
}

func TestNilCheckoutMetricsIsNoop(t *testing.T) {
	var m *CheckoutMetrics
	m.Observe(OutcomeSuccess, time.Second)
	m.AddUnitsSold(1)
	m.IncCompensationFailure()

	NewCheckoutMetrics(nil).Observe(OutcomeSuccess, time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func plainCounter(mfs []*dto.MetricFamily, name string) float64 {
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
