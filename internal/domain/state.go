// Package domain holds the flat, fixed-field records shared by every core
// component: the Ω-state, Plan, AcquisitionReport, Genotype/Candidate,
// MutationBundle, Task, Heartbeat, CanaryWindow and ReleaseManifest.
//
// These are plain structs, not dataclasses-with-mixed-optionals: every
// gate-checked attribute is a named field with a fixed type, never a key in
// a generic map. Capability flags derived from patch contents live in a
// fixed-schema Capabilities struct for the same reason.
package domain

// State is the Ω-state: a flat record of scalar metrics describing the
// current learner and its environment.
type State struct {
	// Risk/quality.
	ECE         float64 `json:"ece"`
	BiasRatio   float64 `json:"bias_ratio"`
	Rho         float64 `json:"rho"`
	RhoBias     float64 `json:"rho_bias"`
	Uncertainty float64 `json:"uncertainty"`

	// Reflexivity/coherence.
	SRScore         float64 `json:"sr_score"`
	CaosPost        float64 `json:"caos_post"`
	GlobalCoherence float64 `json:"global_coherence"`

	// Performance.
	DeltaLinf float64 `json:"delta_linf"`
	PplOOD    float64 `json:"ppl_ood"`
	MDLGain   float64 `json:"mdl_gain"`

	// Control.
	TrustRegionRadius float64 `json:"trust_region_radius"`
	Consent           bool    `json:"consent"`
	EcoOK             bool    `json:"eco_ok"`
	CycleCount        int     `json:"cycle_count"`

	// Predictions, filled by the mutation engine for downstream gates.
	DeltaLinfPred float64 `json:"delta_linf_pred"`
	MDLGainPred   float64 `json:"mdl_gain_pred"`
	PplOODPred    float64 `json:"ppl_ood_pred"`

	// Audit, append-only within a cycle.
	Hashes        []string `json:"hashes,omitempty"`
	ProofIDs      []string `json:"proof_ids,omitempty"`
	Capabilities  Capabilities `json:"capabilities"`
}

// Capabilities is a fixed-schema bag of booleans derived from patch
// contents, set by the mutation engine at the end of a cycle (§4.B step 11).
type Capabilities struct {
	QuantizationEnabled bool `json:"quantization_enabled"`
	PruningEnabled      bool `json:"pruning_enabled"`
	RAGEnabled          bool `json:"rag_enabled"`
	DistillationEnabled bool `json:"distillation_enabled"`
}

// AppendHash appends a hash to the audit trail. The list is append-only
// within a cycle; callers must never remove or reorder entries.
func (s *State) AppendHash(h string) {
	s.Hashes = append(s.Hashes, h)
}

// AppendProof appends a proof id to the audit trail.
func (s *State) AppendProof(id string) {
	s.ProofIDs = append(s.ProofIDs, id)
}

// Clone returns a deep copy so the engine can mutate predictions and audit
// lists without aliasing the caller's State.
func (s *State) Clone() *State {
	c := *s
	c.Hashes = append([]string(nil), s.Hashes...)
	c.ProofIDs = append([]string(nil), s.ProofIDs...)
	return &c
}
