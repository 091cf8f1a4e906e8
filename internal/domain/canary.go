package domain

import "time"

// CanaryStatus is the lifecycle of a canary comparison window.
type CanaryStatus string

const (
	CanaryOpen    CanaryStatus = "open"
	CanaryPromote CanaryStatus = "promote"
	CanaryRollback CanaryStatus = "rollback"
	CanaryMissing CanaryStatus = "missing"
	CanaryTimeout CanaryStatus = "timeout"
)

// CanaryCriteria are the thresholds that decide promote vs rollback.
type CanaryCriteria struct {
	ThresholdRhoSpike   float64 `json:"threshold_rho_spike"`
	ThresholdSRDrop     float64 `json:"threshold_sr_drop"`
	ThresholdPplRegress float64 `json:"threshold_ppl_regress"`
}

// MetricSnapshot is a telemetry snapshot taken for either the baseline or
// the canary side of a window. Who populates it is out of scope (§9 Open
// Questions: "Canary metric population") — it is filled out-of-band by the
// F5 worker or an external telemetry feeder before Evaluate is called.
type MetricSnapshot struct {
	Rho       float64 `json:"rho"`
	SRScore   float64 `json:"sr_score"`
	PplOOD    float64 `json:"ppl_ood"`
	ErrorRate float64 `json:"error_rate,omitempty"`
	LatencyP95 float64 `json:"latency_p95,omitempty"`
}

// CanaryWindow is a time-bounded comparison between a baseline and a
// candidate's telemetry.
type CanaryWindow struct {
	WindowID        string         `json:"window_id"`
	PlanID          string         `json:"plan_id"`
	TrafficPct      float64        `json:"traffic_pct"`
	DurationS       int64          `json:"duration_s"`
	Criteria        CanaryCriteria `json:"criteria"`
	Status          CanaryStatus   `json:"status"`
	OpenedAt        time.Time      `json:"opened_at"`
	EvaluatedAt     time.Time      `json:"evaluated_at,omitempty"`
	MetricsBaseline MetricSnapshot `json:"metrics_baseline"`
	MetricsCanary   MetricSnapshot `json:"metrics_canary"`
}

// Elapsed reports whether the window's duration has passed as of now.
func (w *CanaryWindow) Elapsed(now time.Time) bool {
	return now.Sub(w.OpenedAt) >= time.Duration(w.DurationS)*time.Second
}
