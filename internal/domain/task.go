package domain

import "time"

// TaskType is one of the four mini-DAG task kinds per plan.
type TaskType string

const (
	TaskAcquisition TaskType = "F3" // knowledge acquisition
	TaskMutation    TaskType = "F4" // mutation & ranking (risk-neutral)
	TaskFusion      TaskType = "F5" // fusion / selection (risk-reducing)
	TaskRewrite     TaskType = "F6" // rewrite (risk-reducing)
)

// Stage is the promotion stage a task executes under.
type Stage string

const (
	StageShadow Stage = "shadow"
	StageCanary Stage = "canary"
	StageMain   Stage = "main"
)

// TaskStatus is the task lifecycle: pending -> leased -> (done|failed) ->
// dead, per §4.C.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskLeased  TaskStatus = "leased"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
	TaskDead    TaskStatus = "dead"
)

// RiskBound names the risk gate the scheduler must enforce for a task.
type RiskBound struct {
	RhoMax float64 `json:"rho_max"`
	SRMin  float64 `json:"sr_min"`
}

// ExpectedCost is the task's declared resource estimate, consumed by the
// scheduler's utility score and the plan budget manager.
type ExpectedCost struct {
	Tokens    int64   `json:"tokens"`
	LatencyMs int64   `json:"latency_ms"`
	CPUSeconds float64 `json:"cpu_s"`
	Cost      float64 `json:"cost"`
}

// Task is one durable-queue entry.
type Task struct {
	ID             string       `json:"id"`
	Type           TaskType     `json:"type"`
	Payload        string       `json:"payload"`
	Priority       int          `json:"priority"`
	PlanID         string       `json:"plan_id"`
	Stage          Stage        `json:"stage"`
	Created        time.Time    `json:"created"`
	Status         TaskStatus   `json:"status"`
	Attempts       int          `json:"attempts"`
	MaxAttempts    int          `json:"max_attempts"`
	IdempotencyKey string       `json:"idempotency_key"`
	ExpectedGain   float64      `json:"expected_gain"`
	ExpectedCost   ExpectedCost `json:"expected_cost"`
	RiskBound      RiskBound    `json:"risk_bound"`
	TrRadius       float64      `json:"tr_radius"`
	TTLSeconds     int64        `json:"ttl_s"`
	LeaseUntil     time.Time    `json:"lease_until"`
	Owner          string       `json:"owner"`
	Domain         string       `json:"domain"`
	RiskReduction  bool         `json:"risk_reduction"`
}

// Heartbeat is per-task telemetry emitted while a worker holds a lease.
type Heartbeat struct {
	TaskID     string            `json:"task_id"`
	Owner      string            `json:"owner"`
	Ts         time.Time         `json:"ts"`
	Rho        float64           `json:"rho"`
	SRScore    float64           `json:"sr_score"`
	CaosPost   float64           `json:"caos_post"`
	ElapsedMs  int64             `json:"elapsed_ms"`
	Stage      Stage             `json:"stage"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}
