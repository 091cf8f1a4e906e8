package scheduler

import (
	"math"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/mutation"
)

// GateInputs are the live Ω-state signals the non-compensatory gates and
// the utility score read (§4.C "Non-compensatory gates").
type GateInputs struct {
	ECE       float64
	RhoBias   float64
	Consent   bool
	EcoOK     bool
	Rho       float64
	RhoMax    float64
	SRScore   float64
	SRTau     float64
	CaosPost  float64
	Kappa     float64
	LambdaRho float64
}

// Eligible implements the fixed non-compensatory gate sequence: any
// violation excludes the task from selection (fail-closed), unless the
// task is itself risk-reducing, which waives the IR->IC and SR gates.
func Eligible(t domain.Task, g GateInputs, budgetBlocked, breakerOpen bool) bool {
	if g.ECE > sigmaGuardEceMax || g.RhoBias > sigmaGuardRhoBiasMax || !g.Consent || !g.EcoOK {
		return false
	}
	rhoLimit := g.RhoMax
	if t.RiskBound.RhoMax > 0 && t.RiskBound.RhoMax < rhoLimit {
		rhoLimit = t.RiskBound.RhoMax
	}
	if g.Rho >= rhoLimit && !t.RiskReduction {
		return false
	}
	srTau := g.SRTau
	if t.RiskBound.SRMin > srTau {
		srTau = t.RiskBound.SRMin
	}
	if g.SRScore < srTau && !t.RiskReduction {
		return false
	}
	if budgetBlocked || breakerOpen {
		return false
	}
	return true
}

// Sigma-Guard defaults used by Eligible when no governance override is
// wired in; the scheduler's own gate is a conservative pre-filter, the
// governance hub's cascade (§4.D) is authoritative at promotion time.
const (
	sigmaGuardEceMax     = 0.2
	sigmaGuardRhoBiasMax = 0.2
)

// Utility implements the scheduler's selection score (§4.C "Scoring and
// selection"):
//
//	utility = E[gain]*phi(caos_post,kappa)*gate/(1+norm_cost+lambda_rho*rho)
//	          + 0.001*priority + 0.0001*age_hours
func Utility(t domain.Task, g GateInputs, now float64 /* unix seconds */, budgetBlocked, breakerOpen bool) float64 {
	gate := 0.0
	if Eligible(t, g, budgetBlocked, breakerOpen) {
		gate = 1.0
	}

	normCost := float64(t.ExpectedCost.Tokens)/1000 + float64(t.ExpectedCost.LatencyMs)/1000 +
		t.ExpectedCost.CPUSeconds + t.ExpectedCost.Cost

	phi := mutation.Phi(g.CaosPost, g.Kappa)
	ageHours := math.Max(0, (now-float64(t.Created.Unix()))/3600)

	return t.ExpectedGain*phi*gate/(1+normCost+g.LambdaRho*g.Rho) +
		0.001*float64(t.Priority) + 0.0001*ageHours
}
