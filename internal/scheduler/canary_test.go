package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

func newCanaryManager(t *testing.T) (*CanaryManager, *Store) {
	t.Helper()
	s := newTestStore(t)
	return NewCanaryManager(s), s
}

func defaultCriteria() domain.CanaryCriteria {
	return domain.CanaryCriteria{ThresholdRhoSpike: 0.1, ThresholdSRDrop: 0.1, ThresholdPplRegress: 0.2}
}

func TestCanaryManager_OpenPersistsWindow(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, err := m.Open(ctx, "plan-1", 0.1, 60, defaultCriteria())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if w.Status != domain.CanaryOpen {
		t.Fatalf("expected open status, got %s", w.Status)
	}

	got, err := m.Get(ctx, w.WindowID)
	if err != nil || got == nil {
		t.Fatalf("get: got=%v err=%v", got, err)
	}
	if got.PlanID != "plan-1" || got.DurationS != 60 {
		t.Fatalf("unexpected persisted window: %+v", got)
	}
}

func TestCanaryManager_EvaluateWaitsForDurationElapsed(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 3600, defaultCriteria())
	got, err := m.Evaluate(ctx, w.WindowID, time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryOpen {
		t.Fatalf("expected window to remain open before duration elapses, got %s", got.Status)
	}
}

func TestCanaryManager_PromotesWhenMetricsWithinCriteria(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.21, SRScore: 0.89, PplOOD: 10.5})

	got, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryPromote {
		t.Fatalf("expected promote, got %s", got.Status)
	}
}

func TestCanaryManager_RollsBackOnRhoSpike(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.35, SRScore: 0.9, PplOOD: 10})

	got, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryRollback {
		t.Fatalf("expected rollback on rho spike, got %s", got.Status)
	}
}

func TestCanaryManager_RollsBackOnSRDrop(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.2, SRScore: 0.75, PplOOD: 10})

	got, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryRollback {
		t.Fatalf("expected rollback on sr drop, got %s", got.Status)
	}
}

func TestCanaryManager_RollsBackOnPerplexityRegression(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 13})

	got, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryRollback {
		t.Fatalf("expected rollback on ppl regression, got %s", got.Status)
	}
}

func TestCanaryManager_TimesOutWithNoMetricsRecorded(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	got, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got.Status != domain.CanaryTimeout {
		t.Fatalf("expected timeout with no telemetry recorded, got %s", got.Status)
	}
}

func TestCanaryManager_RecordsLedgerEventsForOpenAndDecision(t *testing.T) {
	s, path := newLedgerBackedStore(t)
	m := NewCanaryManager(s)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.21, SRScore: 0.89, PplOOD: 10.5})
	if _, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	types := readEventTypes(t, path)
	if len(types) != 2 || types[0] != "CANARY_OPEN" || types[1] != "CANARY_PROMOTE" {
		t.Fatalf("expected [CANARY_OPEN CANARY_PROMOTE], got %v", types)
	}
}

func TestCanaryManager_EvaluateIsIdempotentOnceDecided(t *testing.T) {
	m, _ := newCanaryManager(t)
	ctx := context.Background()

	w, _ := m.Open(ctx, "plan-1", 0.1, 1, defaultCriteria())
	m.RecordMetrics(ctx, w.WindowID, domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10},
		domain.MetricSnapshot{Rho: 0.2, SRScore: 0.9, PplOOD: 10})

	first, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}

	second, err := m.Evaluate(ctx, w.WindowID, time.Now().Add(10*time.Second))
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if second.Status != first.Status {
		t.Fatalf("expected status to stay %s once decided, got %s", first.Status, second.Status)
	}
}
