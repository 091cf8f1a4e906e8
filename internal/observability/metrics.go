package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus collectors exercised by the control plane.
// Generalized from the teacher's hand-rolled ring-buffer MetricsCollector
// to real Prometheus vectors, the convention used throughout the rest of
// the retrieved corpus (99souls-ariadne/packages/engine/telemetry/metrics,
// NikeGunn-tutu/internal/infra/observability, Heikkila-Pty-Ltd-cortex,
// IAmSoThirsty-Project-AI/octoreflex/internal/observability).
type Metrics struct {
	registry *prometheus.Registry

	LedgerAppends *prometheus.CounterVec

	MutCandidatesGenerated prometheus.Counter
	MutCandidatesSkippedTR prometheus.Counter
	MutCandidatesSkippedBudget prometheus.Counter
	MutCandidatesRejectedSandbox prometheus.Counter
	MutBundlesProduced    prometheus.Counter
	MutAborts             *prometheus.CounterVec
	MutCycleDuration      prometheus.Histogram

	SchedTaskTransitions *prometheus.CounterVec
	SchedLeaseExpired    prometheus.Counter
	SchedBudgetBlocked   *prometheus.CounterVec
	SchedBreakerOpen     *prometheus.CounterVec
	SchedBreakerClose    *prometheus.CounterVec
	SchedQueueDepth      prometheus.Gauge

	GovGateOutcomes   *prometheus.CounterVec
	GovReleases       *prometheus.CounterVec
	GovRollbacks      prometheus.Counter
	GovQuarantines    prometheus.Counter

	ScanViolations *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors against a fresh
// registry (never the global default registry, so multiple instances in
// tests don't collide).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		LedgerAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_ledger_appends_total",
			Help: "Total ledger events appended, by type.",
		}, []string{"type"}),

		MutCandidatesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_candidates_generated_total",
			Help: "Total candidates generated by the mutation engine.",
		}),
		MutCandidatesSkippedTR: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_candidates_skipped_trust_region_total",
			Help: "Candidates skipped for exceeding the trust region.",
		}),
		MutCandidatesSkippedBudget: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_candidates_skipped_budget_total",
			Help: "Candidates skipped for exceeding plan budgets.",
		}),
		MutCandidatesRejectedSandbox: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_candidates_rejected_sandbox_total",
			Help: "Candidates rejected by the sandbox sanitize/exec layer.",
		}),
		MutBundlesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_bundles_produced_total",
			Help: "Total mutation bundles produced.",
		}),
		MutAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_mutation_aborts_total",
			Help: "Mutation cycle aborts, by reason.",
		}, []string{"reason"}),
		MutCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "peninaocubo_mutation_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full mutation cycle.",
			Buckets: prometheus.DefBuckets,
		}),

		SchedTaskTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_scheduler_task_transitions_total",
			Help: "Task status transitions, by type and new status.",
		}, []string{"type", "status"}),
		SchedLeaseExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_scheduler_lease_expired_total",
			Help: "Leases reclaimed after expiry.",
		}),
		SchedBudgetBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_scheduler_budget_blocked_total",
			Help: "Plan budget block events, by plan.",
		}, []string{"plan_id"}),
		SchedBreakerOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_scheduler_breaker_open_total",
			Help: "Circuit breaker open transitions, by domain.",
		}, []string{"domain"}),
		SchedBreakerClose: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_scheduler_breaker_close_total",
			Help: "Circuit breaker close transitions, by domain.",
		}, []string{"domain"}),
		SchedQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peninaocubo_scheduler_queue_depth",
			Help: "Current count of pending tasks.",
		}),

		GovGateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_governance_gate_outcomes_total",
			Help: "Gate cascade outcomes, by gate and result.",
		}, []string{"gate", "result"}),
		GovReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_governance_releases_total",
			Help: "Release publish attempts, by terminal status.",
		}, []string{"status"}),
		GovRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_governance_rollbacks_total",
			Help: "Total release rollbacks performed.",
		}),
		GovQuarantines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peninaocubo_governance_quarantines_total",
			Help: "Total releases quarantined for DLP hits.",
		}),

		ScanViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peninaocubo_scanner_violations_total",
			Help: "Content scan violations, by pattern type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.LedgerAppends,
		m.MutCandidatesGenerated, m.MutCandidatesSkippedTR, m.MutCandidatesSkippedBudget,
		m.MutCandidatesRejectedSandbox, m.MutBundlesProduced, m.MutAborts, m.MutCycleDuration,
		m.SchedTaskTransitions, m.SchedLeaseExpired, m.SchedBudgetBlocked,
		m.SchedBreakerOpen, m.SchedBreakerClose, m.SchedQueueDepth,
		m.GovGateOutcomes, m.GovReleases, m.GovRollbacks, m.GovQuarantines,
		m.ScanViolations,
	)
	return m
}

// Registry exposes the underlying Prometheus registry, e.g. for wiring to
// an HTTP /metrics handler in the entry point.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
