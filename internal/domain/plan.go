package domain

// Goal is one ordered target within a Plan.
type Goal struct {
	Name      string  `json:"name"`
	Metric    string  `json:"metric"`
	Target    float64 `json:"target"`
	Tolerance float64 `json:"tolerance"`
}

// Constraints mirror the State's gate-checked attributes as hard thresholds.
type Constraints struct {
	ECEMax       float64 `json:"ece_max"`
	RhoMax       float64 `json:"rho_max"`
	RhoBiasMax   float64 `json:"rho_bias_max"`
	SRMin        float64 `json:"sr_min"`
	UncertaintyMax float64 `json:"uncertainty_max"`
}

// Budgets caps a Plan's consumption in abstract units.
type Budgets struct {
	MaxCost      float64 `json:"max_cost"`
	MaxTokens    int64   `json:"max_tokens"`
	MaxLLMCalls  int64   `json:"max_llm_calls"`
	MaxLatencyMs int64   `json:"max_latency_ms"`
}

// PromotionPolicy and RollbackPolicy are free-form driver labels the
// governance hub and canary manager read; their semantics are owned by the
// external planner, not this module.
type PromotionPolicy string
type RollbackPolicy string

// Plan is the read-only input emitted by the external strategic planner.
type Plan struct {
	ID              string            `json:"id"`
	Goals           []Goal            `json:"goals"`
	Constraints     Constraints       `json:"constraints"`
	Budgets         Budgets           `json:"budgets"`
	PriorityMap     map[string]int    `json:"priority_map"`
	PromotionPolicy PromotionPolicy   `json:"promotion_policy"`
	RollbackPolicy  RollbackPolicy    `json:"rollback_policy"`
	USignal         string            `json:"u_signal"`
}
