package mutation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/genespace"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/observability"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "ledger.jsonl"), observability.NewLogger("ledger", nil), observability.NewMetrics())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	cfg := DefaultConfig()
	cfg.NCandidates = 12
	cfg.TopK = 3
	cfg.ArtifactDir = filepath.Join(dir, "bundles")

	eng := NewEngine(genespace.Default(), cfg, l, observability.NewLogger("mutation", nil), observability.NewMetrics())
	return eng, dir
}

func safeState() *domain.State {
	return &domain.State{
		ECE:               0.02,
		Rho:               0.1,
		SRScore:           0.8,
		CaosPost:          10,
		TrustRegionRadius: 0.2,
	}
}

func safePlan() *domain.Plan {
	return &domain.Plan{
		ID: "plan_demo_001",
		Budgets: domain.Budgets{
			MaxCost: 1000, // effectively unconstrained for this test
		},
	}
}

func safeAcq() *domain.AcquisitionReport {
	return &domain.AcquisitionReport{
		NoveltySim:      0.6,
		RAGRecall:       0.7,
		AnchorQuestions: []string{"q1", "q2"},
		NumDocs:         10,
		NumChunks:       40,
	}
}

func TestEngine_Run_ProducesBundleWithinTopK(t *testing.T) {
	eng, _ := newTestEngine(t)
	bundle, updated, err := eng.Run(context.Background(), safeState(), safePlan(), safeAcq(), RunOptions{Seed: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(bundle.TopK) == 0 {
		t.Fatal("bundle has no candidates")
	}
	if len(bundle.TopK) > eng.cfg.TopK {
		t.Errorf("len(TopK) = %d, want <= %d", len(bundle.TopK), eng.cfg.TopK)
	}
	if updated.CycleCount != 1 {
		t.Errorf("CycleCount = %d, want 1", updated.CycleCount)
	}
	if bundle.ArtifactPath == "" {
		t.Error("ArtifactPath is empty")
	}
}

// P3 (Trust-region containment): every produced candidate must satisfy
// distance_to_base <= trust_region_radius*(1+1e-6).
func TestEngine_Run_CandidatesRespectTrustRegion(t *testing.T) {
	eng, _ := newTestEngine(t)
	state := safeState()
	bundle, _, err := eng.Run(context.Background(), state, safePlan(), safeAcq(), RunOptions{Seed: 3})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	limit := state.TrustRegionRadius * (1 + 1e-6)
	for _, c := range bundle.TopK {
		if c.DistanceToBase > limit {
			t.Errorf("candidate %s distance=%v exceeds trust region limit %v", c.CandID, c.DistanceToBase, limit)
		}
	}
}

func TestEngine_Run_RejectsEntryGateViolation(t *testing.T) {
	eng, _ := newTestEngine(t)
	state := safeState()
	state.ECE = 0.9 // above default ece_max
	_, _, err := eng.Run(context.Background(), state, safePlan(), safeAcq(), RunOptions{Seed: 1})
	if err == nil {
		t.Fatal("expected ethics gate violation error")
	}
}

// P2 (Determinism): identical (state, plan, acq, seed) and no observations
// yields identical bundle identity and candidate set.
func TestEngine_Run_DeterministicGivenIdenticalInputs(t *testing.T) {
	eng1, _ := newTestEngine(t)
	eng2, _ := newTestEngine(t)

	b1, _, err := eng1.Run(context.Background(), safeState(), safePlan(), safeAcq(), RunOptions{Seed: 99})
	if err != nil {
		t.Fatal(err)
	}
	b2, _, err := eng2.Run(context.Background(), safeState(), safePlan(), safeAcq(), RunOptions{Seed: 99})
	if err != nil {
		t.Fatal(err)
	}

	if b1.BundleID != b2.BundleID {
		t.Errorf("BundleID differs: %s != %s", b1.BundleID, b2.BundleID)
	}
	if len(b1.TopK) != len(b2.TopK) {
		t.Fatalf("TopK length differs: %d != %d", len(b1.TopK), len(b2.TopK))
	}
	for i := range b1.TopK {
		if b1.TopK[i].CandID != b2.TopK[i].CandID {
			t.Errorf("candidate %d id differs: %s != %s", i, b1.TopK[i].CandID, b2.TopK[i].CandID)
		}
		if b1.TopK[i].Score != b2.TopK[i].Score {
			t.Errorf("candidate %d score differs: %v != %v", i, b1.TopK[i].Score, b2.TopK[i].Score)
		}
	}
}

func TestEngine_Run_AbortsOnNoBudget(t *testing.T) {
	eng, _ := newTestEngine(t)
	plan := safePlan()
	plan.Budgets.MaxCost = 0.0000001 // exhausted almost immediately
	_, _, err := eng.Run(context.Background(), safeState(), plan, safeAcq(), RunOptions{Seed: 5})
	if err == nil {
		t.Fatal("expected abort when budget is exhausted before any candidate survives")
	}
}
