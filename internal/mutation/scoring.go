package mutation

import "math"

// CombinedGain implements §4.B step 9's combined-gain term.
func CombinedGain(deltaLinfHat, mdlGainHat, pplOODHat float64) float64 {
	return deltaLinfHat + 0.3*mdlGainHat + 0.1*math.Max(0, (100-pplOODHat)/100)
}

// Phi is the saturating utility curve phi(z,kappa) = min(1, ln(max(1,z))/ln(1+kappa)).
func Phi(z, kappa float64) float64 {
	if kappa <= 0 {
		kappa = 1e-6
	}
	return math.Min(1, math.Log(math.Max(1, z))/math.Log(1+kappa))
}

// ScoreParams bundles the safe-utility scoring inputs (§4.B step 9).
type ScoreParams struct {
	CombinedGain float64
	CaosPost     float64
	SRScore      float64
	Cost         float64
	Risk         float64
	TRDist       float64
	TRRadius     float64
	LambdaRho    float64 // default 0.5
	Epsilon      float64 // default 1e-6
	Kappa        float64
}

// Score implements the full non-compensatory safe-utility formula.
func Score(p ScoreParams) float64 {
	lambdaRho := p.LambdaRho
	if lambdaRho == 0 {
		lambdaRho = 0.5
	}
	epsilon := p.Epsilon
	if epsilon == 0 {
		epsilon = 1e-6
	}

	denom := p.Cost + lambdaRho*p.Risk + epsilon

	trPenalty := 1.0
	if p.TRRadius > 0 {
		ratio := p.TRDist / p.TRRadius
		if ratio > 0.7 {
			trPenalty = 1 + 2*(ratio-0.7)
		}
	}

	phi := Phi(p.CaosPost, p.Kappa)
	srFloor := math.Max(0.1, p.SRScore)

	score := p.CombinedGain * phi * srFloor / (denom * trPenalty)
	return math.Max(0, score)
}
