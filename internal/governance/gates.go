package governance

import (
	"fmt"

	"github.com/peninaocubo/core/internal/domain"
)

// GateDecision is the outcome of running the cascade: either it passed (in
// which case release assembly proceeds) or it short-circuited at a named
// gate with a reason and the partial GateResult map collected so far.
type GateDecision struct {
	Passed  bool
	Reason  string
	Results map[string]domain.GateResult
}

// RunGateCascade executes the fixed lexicographic, fail-closed gate order
// from spec §4.D: freeze -> RBAC -> ethics -> risk -> reflexivity ->
// performance (non-blocking) -> canary. Any blocking failure short-circuits
// the remaining gates.
func RunGateCascade(cfg Config, freezeRoot string, state domain.State, user string, canary domain.CanaryDecision) GateDecision {
	results := make(map[string]domain.GateResult)

	if IsFrozen(freezeRoot) {
		results["freeze"] = domain.GateResult{Passed: false, Blocking: true, Violations: []string{"system frozen"}}
		return GateDecision{Passed: false, Reason: "System frozen", Results: results}
	}
	results["freeze"] = domain.GateResult{Passed: true}

	if len(cfg.Publishers) > 0 && !contains(cfg.Publishers, user) {
		results["rbac"] = domain.GateResult{Passed: false, Blocking: true, Violations: []string{fmt.Sprintf("user %q not a publisher", user)}}
		return GateDecision{Passed: false, Reason: "RBAC: not a publisher", Results: results}
	}
	results["rbac"] = domain.GateResult{Passed: true}

	var ethicsViolations []string
	if state.ECE > cfg.Ethics.ECEMax {
		ethicsViolations = append(ethicsViolations, fmt.Sprintf("ece %.4f > max %.4f", state.ECE, cfg.Ethics.ECEMax))
	}
	if state.RhoBias > cfg.Ethics.RhoBiasMax {
		ethicsViolations = append(ethicsViolations, fmt.Sprintf("rho_bias %.4f > max %.4f", state.RhoBias, cfg.Ethics.RhoBiasMax))
	}
	if cfg.Ethics.RequireConsent && !state.Consent {
		ethicsViolations = append(ethicsViolations, "consent required but not granted")
	}
	if cfg.Ethics.RequireEcoOK && !state.EcoOK {
		ethicsViolations = append(ethicsViolations, "eco_ok required but false")
	}
	if len(ethicsViolations) > 0 {
		results["ethics"] = domain.GateResult{Passed: false, Blocking: true, Violations: ethicsViolations}
		return GateDecision{Passed: false, Reason: "Ethics (Sigma-Guard) violation", Results: results}
	}
	results["ethics"] = domain.GateResult{Passed: true}

	var riskViolations []string
	if state.Rho >= cfg.Risk.RhoMax {
		riskViolations = append(riskViolations, fmt.Sprintf("rho %.4f >= max %.4f", state.Rho, cfg.Risk.RhoMax))
	}
	if state.Uncertainty > cfg.Risk.UncertaintyMax {
		riskViolations = append(riskViolations, fmt.Sprintf("uncertainty %.4f > max %.4f", state.Uncertainty, cfg.Risk.UncertaintyMax))
	}
	if len(riskViolations) > 0 {
		results["risk"] = domain.GateResult{Passed: false, Blocking: true, Violations: riskViolations}
		return GateDecision{Passed: false, Reason: "Risk (IR->IC) violation", Results: results}
	}
	results["risk"] = domain.GateResult{Passed: true}

	if state.SRScore < cfg.Risk.SRTau {
		results["reflexivity"] = domain.GateResult{
			Passed: false, Blocking: true,
			Violations: []string{fmt.Sprintf("sr_score %.4f < tau %.4f", state.SRScore, cfg.Risk.SRTau)},
		}
		return GateDecision{Passed: false, Reason: "Reflexivity (SR) violation", Results: results}
	}
	results["reflexivity"] = domain.GateResult{Passed: true}

	var perfViolations []string
	if state.PplOOD > cfg.Perf.PplOODMax {
		perfViolations = append(perfViolations, fmt.Sprintf("ppl_ood %.4f > max %.4f", state.PplOOD, cfg.Perf.PplOODMax))
	}
	if state.DeltaLinf < cfg.Perf.DeltaLinfMin {
		perfViolations = append(perfViolations, fmt.Sprintf("delta_linf %.4f < min %.4f", state.DeltaLinf, cfg.Perf.DeltaLinfMin))
	}
	// Non-blocking: recorded but never short-circuits (spec §4.D step 6).
	results["performance"] = domain.GateResult{Passed: len(perfViolations) == 0, Blocking: false, Violations: perfViolations}

	if canary != domain.DecisionPromote {
		results["canary"] = domain.GateResult{Passed: false, Blocking: true, Violations: []string{fmt.Sprintf("canary decision %q", canary)}}
		return GateDecision{Passed: false, Reason: "Canary did not promote", Results: results}
	}
	results["canary"] = domain.GateResult{Passed: true}

	return GateDecision{Passed: true, Results: results}
}
