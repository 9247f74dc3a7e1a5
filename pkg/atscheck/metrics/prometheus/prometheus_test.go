package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
)

// find returns the metric family called name
func find(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestMetrics_ImplementsInterface(t *testing.T) {
	var _ atscheck.Metrics = NewMetrics(prometheus.NewRegistry(), "test")
}

func TestMetrics_GateDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordGateDecision(atscheck.Allow.String())
	m.RecordGateDecision(atscheck.Allow.String())
	m.RecordGateDecision(atscheck.RequireLogin.String())

	mf := find(t, reg, "test_gate_decisions_total")
	counts := make(map[string]float64)
	for _, metric := range mf.GetMetric() {
		counts[labels(metric)["decision"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"allow": 2, "require_login": 1}, counts)
}

func TestMetrics_Submission(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordSubmission("percentage", "success", 2*time.Second)

	mf := find(t, reg, "test_submissions_total")
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, map[string]string{"action": "percentage", "outcome": "success"}, labels(mf.GetMetric()[0]))

	hist := find(t, reg, "test_submission_duration_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 2.0, hist.GetSampleSum(), 0.001)
}

func TestMetrics_BackendCallErrorsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordBackendCall("check_usage", 10*time.Millisecond, nil)
	m.RecordBackendCall("check_usage", 10*time.Millisecond, atscheck.ErrTransport)
	m.RecordBackendCall("login", 10*time.Millisecond, &atscheck.APIError{Op: "login", StatusCode: 400})

	mf := find(t, reg, "test_backend_call_errors_total")
	got := make(map[string]string)
	for _, metric := range mf.GetMetric() {
		l := labels(metric)
		got[l["operation"]] = l["kind"]
	}
	assert.Equal(t, map[string]string{"check_usage": "transport", "login": "backend"}, got)

	hist := find(t, reg, "test_backend_call_duration_seconds")
	var samples uint64
	for _, metric := range hist.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	assert.Equal(t, uint64(3), samples)
}

func TestMetrics_Misc(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordUsageRefresh(true, time.Millisecond)
	m.RecordUsageRefresh(false, time.Millisecond)
	m.RecordSessionRestore("restored")
	m.RecordPayment("initiate", "success")
	m.RecordCircuitBreakerStateChange("open")

	assert.Len(t, find(t, reg, "test_usage_refresh_total").GetMetric(), 2)
	assert.Equal(t, uint64(2), find(t, reg, "test_usage_refresh_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 1.0, find(t, reg, "test_session_restores_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "test_payment_steps_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "test_circuit_breaker_state_changes_total").GetMetric()[0].GetCounter().GetValue())
}
