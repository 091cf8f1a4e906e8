package governance

import (
	"testing"

	"github.com/peninaocubo/core/internal/domain"
)

func healthyState() domain.State {
	return domain.State{
		ECE: 0.05, RhoBias: 0.05, Rho: 0.3, Uncertainty: 0.1,
		SRScore: 0.9, CaosPost: 1.0, PplOOD: 5.0, DeltaLinf: 0.5,
		Consent: true, EcoOK: true,
	}
}

func TestRunGateCascade_PassesAllGatesOnHealthyState(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	d := RunGateCascade(cfg, root, healthyState(), "alice", domain.DecisionPromote)
	if !d.Passed {
		t.Fatalf("expected cascade to pass, got reason %q results %+v", d.Reason, d.Results)
	}
}

func TestRunGateCascade_ShortCircuitsOnFreeze(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	if err := Freeze(root); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	d := RunGateCascade(cfg, root, healthyState(), "alice", domain.DecisionPromote)
	if d.Passed {
		t.Fatal("expected frozen system to fail the cascade")
	}
	if _, ok := d.Results["rbac"]; ok {
		t.Fatal("expected cascade to stop at freeze, never reaching rbac")
	}
}

func TestRunGateCascade_RBACRejectsNonPublisher(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Publishers = []string{"alice"}
	root := t.TempDir()
	d := RunGateCascade(cfg, root, healthyState(), "mallory", domain.DecisionPromote)
	if d.Passed {
		t.Fatal("expected non-publisher to be rejected")
	}
	if _, ok := d.Results["ethics"]; ok {
		t.Fatal("expected cascade to stop at rbac, never reaching ethics")
	}
}

func TestRunGateCascade_EthicsBlocksOnECEOverMax(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	state := healthyState()
	state.ECE = cfg.Ethics.ECEMax + 0.5
	d := RunGateCascade(cfg, root, state, "alice", domain.DecisionPromote)
	if d.Passed {
		t.Fatal("expected ethics gate to block on excessive ECE")
	}
	if d.Results["ethics"].Passed {
		t.Fatal("expected ethics result to record failure")
	}
}

func TestRunGateCascade_RiskBlocksOnRhoAtOrAboveMax(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	state := healthyState()
	state.Rho = cfg.Risk.RhoMax
	d := RunGateCascade(cfg, root, state, "alice", domain.DecisionPromote)
	if d.Passed {
		t.Fatal("expected risk gate to block when rho reaches max")
	}
}

func TestRunGateCascade_ReflexivityBlocksBelowTau(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	state := healthyState()
	state.SRScore = cfg.Risk.SRTau - 0.1
	d := RunGateCascade(cfg, root, state, "alice", domain.DecisionPromote)
	if d.Passed {
		t.Fatal("expected reflexivity gate to block below tau")
	}
}

func TestRunGateCascade_PerformanceIsNonBlocking(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	state := healthyState()
	state.PplOOD = cfg.Perf.PplOODMax + 100
	d := RunGateCascade(cfg, root, state, "alice", domain.DecisionPromote)
	if !d.Passed {
		t.Fatalf("expected performance violation to not block promotion, got reason %q", d.Reason)
	}
	if d.Results["performance"].Passed {
		t.Fatal("expected performance result to still record the violation")
	}
}

func TestRunGateCascade_BlocksWhenCanaryDidNotPromote(t *testing.T) {
	cfg := DefaultConfig()
	root := t.TempDir()
	d := RunGateCascade(cfg, root, healthyState(), "alice", domain.DecisionRollback)
	if d.Passed {
		t.Fatal("expected non-promote canary decision to block")
	}
	if !d.Results["performance"].Passed {
		t.Fatal("expected performance gate to have been evaluated before the canary check")
	}
}
