package observability

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	m := NewMetrics()
	if m.Registry() == nil {
		t.Fatal("Registry() returned nil")
	}
}

func TestMetrics_LedgerAppends(t *testing.T) {
	m := NewMetrics()
	m.LedgerAppends.WithLabelValues("MUT_START").Inc()
	m.LedgerAppends.WithLabelValues("MUT_START").Inc()
	m.LedgerAppends.WithLabelValues("MUT_DONE").Inc()

	if got := counterValue(t, m.LedgerAppends.WithLabelValues("MUT_START")); got != 2 {
		t.Errorf("MUT_START count = %v, want 2", got)
	}
	if got := counterValue(t, m.LedgerAppends.WithLabelValues("MUT_DONE")); got != 1 {
		t.Errorf("MUT_DONE count = %v, want 1", got)
	}
}

func TestMetrics_MutationCounters(t *testing.T) {
	m := NewMetrics()
	m.MutCandidatesGenerated.Inc()
	m.MutCandidatesSkippedTR.Inc()
	m.MutBundlesProduced.Inc()
	m.MutAborts.WithLabelValues("ethics_gate").Inc()

	if got := counterValue(t, m.MutCandidatesGenerated); got != 1 {
		t.Errorf("MutCandidatesGenerated = %v, want 1", got)
	}
	if got := counterValue(t, m.MutAborts.WithLabelValues("ethics_gate")); got != 1 {
		t.Errorf("MutAborts[ethics_gate] = %v, want 1", got)
	}
}

func TestMetrics_SchedulerAndGovernanceCounters(t *testing.T) {
	m := NewMetrics()
	m.SchedTaskTransitions.WithLabelValues("F4", "done").Inc()
	m.SchedBreakerOpen.WithLabelValues("mutation").Inc()
	m.GovGateOutcomes.WithLabelValues("sigma_guard", "pass").Inc()
	m.GovReleases.WithLabelValues("published").Inc()
	m.ScanViolations.WithLabelValues("aws_key").Inc()

	if got := counterValue(t, m.SchedTaskTransitions.WithLabelValues("F4", "done")); got != 1 {
		t.Errorf("SchedTaskTransitions = %v, want 1", got)
	}
	if got := counterValue(t, m.ScanViolations.WithLabelValues("aws_key")); got != 1 {
		t.Errorf("ScanViolations = %v, want 1", got)
	}
}
