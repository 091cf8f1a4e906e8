package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
)

// DAGNode pairs a task with the ids of tasks it depends on, the shape the
// orchestrator's round-robin executor consumes.
type DAGNode struct {
	Task      domain.Task
	DependsOn []string
}

// taskDefault bundles the fixed per-type defaults from §4.C "DAG builder".
type taskDefault struct {
	expectedGain  float64
	domain        string
	riskReduction bool
}

var taskDefaults = map[domain.TaskType]taskDefault{
	domain.TaskAcquisition: {expectedGain: 0.15, domain: "acquisition", riskReduction: false},
	domain.TaskMutation:    {expectedGain: 0.10, domain: "mutation", riskReduction: false},
	domain.TaskFusion:      {expectedGain: 0.15, domain: "fusion", riskReduction: true},
	domain.TaskRewrite:     {expectedGain: 0.10, domain: "rewrite", riskReduction: true},
}

// BuildDAG emits the four-task mini-DAG for one plan round: F3 -> F4 -> F5
// -> F6, each depending on its predecessor (§4.C "DAG builder").
func BuildDAG(plan domain.Plan) []DAGNode {
	order := []domain.TaskType{domain.TaskAcquisition, domain.TaskMutation, domain.TaskFusion, domain.TaskRewrite}
	nodes := make([]DAGNode, 0, len(order))

	var prevID string
	for _, taskType := range order {
		def := taskDefaults[taskType]
		id := deterministicTaskID(plan.ID, taskType)

		t := domain.Task{
			ID:             id,
			Type:           taskType,
			PlanID:         plan.ID,
			Stage:          domain.StageShadow,
			Status:         domain.TaskPending,
			MaxAttempts:    3,
			IdempotencyKey: fmt.Sprintf("%s|%s", plan.ID, taskType),
			ExpectedGain:   def.expectedGain,
			ExpectedCost: domain.ExpectedCost{
				Tokens:     500,
				LatencyMs:  800,
				CPUSeconds: 0.5,
				Cost:       0.02,
			},
			RiskBound: domain.RiskBound{RhoMax: 0.95, SRMin: 0.78},
			TTLSeconds: 86400,
			Domain:     def.domain,
			RiskReduction: def.riskReduction,
		}

		var deps []string
		if prevID != "" {
			deps = []string{prevID}
		}
		nodes = append(nodes, DAGNode{Task: t, DependsOn: deps})
		prevID = id
	}
	return nodes
}

func deterministicTaskID(planID string, t domain.TaskType) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(planID+"|"+string(t)))
	return "task_" + u.String()[:12]
}

// DAGExecutor runs DAGNodes respecting dependency ordering, with
// independent-ready nodes dispatched in parallel, grounded on the
// teacher's pipeline.DAGExecutor ready-set loop.
type DAGExecutor struct {
	execFn func(ctx context.Context, node DAGNode) error
	ledger *ledger.Ledger
}

// NewDAGExecutor builds an executor for fn. lg may be nil.
func NewDAGExecutor(fn func(ctx context.Context, node DAGNode) error, lg *ledger.Ledger) *DAGExecutor {
	return &DAGExecutor{execFn: fn, ledger: lg}
}

// Execute runs every node once its dependencies are complete, returning
// the first error encountered (if any).
func (d *DAGExecutor) Execute(ctx context.Context, nodes []DAGNode) error {
	if len(nodes) == 0 {
		return nil
	}

	planID := nodes[0].Task.PlanID
	if d.ledger != nil {
		d.ledger.Record("PLAN_ROUND_START", map[string]any{"plan_id": planID, "nodes": len(nodes)})
	}

	var mu sync.Mutex
	completed := make(map[string]bool, len(nodes))
	failed := make(map[string]bool, len(nodes))
	var firstErr error

	for {
		mu.Lock()
		var ready []DAGNode
		for _, n := range nodes {
			if completed[n.Task.ID] || failed[n.Task.ID] {
				continue
			}
			ok := true
			for _, dep := range n.DependsOn {
				if !completed[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, n)
			}
		}
		done := len(completed)+len(failed) == len(nodes)
		mu.Unlock()

		if done || len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, n := range ready {
			wg.Add(1)
			go func(node DAGNode) {
				defer wg.Done()
				err := d.execFn(ctx, node)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[node.Task.ID] = true
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				completed[node.Task.ID] = true
			}(n)
		}
		wg.Wait()
	}

	if d.ledger != nil {
		status := "ok"
		if firstErr != nil {
			status = "error"
		}
		d.ledger.Record("PLAN_ROUND_END", map[string]any{"plan_id": planID, "status": status})
	}

	return firstErr
}
