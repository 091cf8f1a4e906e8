// Package governance implements the Governance Hub (§4.D): a lexicographic,
// fail-closed gate cascade; release assembly, signing, snapshot, atomic
// publish; rollback; and freeze. Grounded on the teacher's observation-
// window decide-once pattern for the gate/decision shape and its atomic-
// file idioms for publish/rollback (see DESIGN.md).
package governance

import "encoding/json"

// EthicsThresholds are the Sigma-Guard limits (spec §4.D step 3).
type EthicsThresholds struct {
	ECEMax       float64 `json:"ece_max"`
	RhoBiasMax   float64 `json:"rho_bias_max"`
	RequireConsent bool  `json:"require_consent"`
	RequireEcoOK bool    `json:"require_eco_ok"`
}

// RiskThresholds gate IR->IC and reflexivity (spec §4.D steps 4-5).
type RiskThresholds struct {
	RhoMax         float64 `json:"rho_max"`
	UncertaintyMax float64 `json:"uncertainty_max"`
	SRTau          float64 `json:"sr_tau"`
}

// PerfThresholds are non-blocking performance checks (spec §4.D step 6).
type PerfThresholds struct {
	PplOODMax    float64 `json:"ppl_ood_max"`
	DeltaLinfMin float64 `json:"delta_linf_min"`
}

// Config is the governance config document (spec §6), a single JSON file
// merged over these defaults with user overrides winning.
type Config struct {
	Ethics     EthicsThresholds `json:"ethics"`
	Risk       RiskThresholds   `json:"risk"`
	Perf       PerfThresholds   `json:"perf"`
	Publishers []string         `json:"publishers"`
	Approvers  []string         `json:"approvers"`
}

// DefaultConfig returns the built-in defaults every deployment starts from.
func DefaultConfig() Config {
	return Config{
		Ethics: EthicsThresholds{ECEMax: 0.15, RhoBiasMax: 0.2, RequireConsent: true, RequireEcoOK: true},
		Risk:   RiskThresholds{RhoMax: 0.8, UncertaintyMax: 0.3, SRTau: 0.78},
		Perf:   PerfThresholds{PplOODMax: 50.0, DeltaLinfMin: 0.0},
	}
}

// LoadConfig parses a JSON document and deep-merges it over DefaultConfig,
// with present fields in raw overriding the default. Using stdlib
// encoding/json here rather than a third-party config library is
// deliberate: this is the single fixed JSON document the spec names in
// §6, not a general CLI/config-parsing surface (see DESIGN.md).
func LoadConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	var overrides struct {
		Ethics     *EthicsThresholds `json:"ethics"`
		Risk       *RiskThresholds   `json:"risk"`
		Perf       *PerfThresholds   `json:"perf"`
		Publishers []string          `json:"publishers"`
		Approvers  []string          `json:"approvers"`
	}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return Config{}, err
	}
	if overrides.Ethics != nil {
		cfg.Ethics = *overrides.Ethics
	}
	if overrides.Risk != nil {
		cfg.Risk = *overrides.Risk
	}
	if overrides.Perf != nil {
		cfg.Perf = *overrides.Perf
	}
	if overrides.Publishers != nil {
		cfg.Publishers = overrides.Publishers
	}
	if overrides.Approvers != nil {
		cfg.Approvers = overrides.Approvers
	}
	return cfg, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
