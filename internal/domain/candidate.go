package domain

// Patch is an opaque payload describing one file/config change a candidate
// applies; path identifies the target, payload carries arbitrary key/value
// data understood by the (out of scope) external worker that executes it.
type Patch struct {
	Path    string            `json:"path"`
	Payload map[string]string `json:"payload"`
}

// PredMetric is a point prediction with a 95% confidence interval.
type PredMetric struct {
	Point float64 `json:"point"`
	CILow float64 `json:"ci_low"`
	CIHigh float64 `json:"ci_high"`
}

// PredMetrics holds the three surrogate-predicted targets for a candidate.
type PredMetrics struct {
	DeltaLinf PredMetric `json:"delta_linf"`
	MDLGain   PredMetric `json:"mdl_gain"`
	PplOOD    PredMetric `json:"ppl_ood"`
}

// EnvCaps are resource ceilings a candidate's build/eval must respect.
type EnvCaps struct {
	MaxCPUSeconds float64 `json:"max_cpu_seconds"`
	MaxMemoryMB   int     `json:"max_memory_mb"`
	MaxLatencyMs  int64   `json:"max_latency_ms"`
}

// Candidate is a single scored mutation produced by the engine.
type Candidate struct {
	CandID         string      `json:"cand_id"`
	ParentIDs      []string    `json:"parent_ids,omitempty"`
	OpSeq          []string    `json:"op_seq"`
	DistanceToBase float64     `json:"distance_to_base"`
	Patches        []Patch     `json:"patches"`
	BuildSteps     []string    `json:"build_steps,omitempty"`
	EnvCaps        EnvCaps     `json:"env_caps"`
	PredMetrics    PredMetrics `json:"pred_metrics"`
	RiskEstimate   float64     `json:"risk_estimate"`
	CostEstimate   float64     `json:"cost_estimate"`
	LatencyEstimate float64    `json:"latency_estimate"`
	Score          float64     `json:"score"`
	Explain        string      `json:"explain"`
	ProofID        string      `json:"proof_id"`
}

// SurrogateTargetReport summarizes one surrogate regressor's fit quality.
type SurrogateTargetReport struct {
	NSamples int     `json:"n_samples"`
	R2       float64 `json:"r2"`
	MAE      float64 `json:"mae"`
}

// SurrogateReport reports fit quality for all three surrogate targets.
type SurrogateReport struct {
	DeltaLinf SurrogateTargetReport `json:"delta_linf"`
	MDLGain   SurrogateTargetReport `json:"mdl_gain"`
	PplOOD    SurrogateTargetReport `json:"ppl_ood"`
}

// DiversitySummary records the diverse top-K selection outcome.
type DiversitySummary struct {
	MinPairwiseDiversity float64 `json:"min_pairwise_diversity"`
	FillerUsed           bool    `json:"filler_used"`
	Threshold            float64 `json:"threshold"`
}

// MutationBundle is the packaged output of one engine cycle.
type MutationBundle struct {
	BundleID         string           `json:"bundle_id"`
	PlanHash         string           `json:"plan_hash"`
	Seed             int64            `json:"seed"`
	TopK             []Candidate      `json:"top_k"`
	SurrogateReport  SurrogateReport  `json:"surrogate_report"`
	DiversitySummary DiversitySummary `json:"diversity_summary"`
	ArtifactPath     string           `json:"artifact_path"`
	XTUpdates        map[string]string `json:"xt_updates,omitempty"`
}
