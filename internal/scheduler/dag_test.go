package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
)

func readEventTypes(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger file: %v", err)
	}
	var types []string
	for _, line := range splitLines(raw) {
		if len(line) == 0 {
			continue
		}
		var ev ledger.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			t.Fatalf("unmarshal ledger line: %v", err)
		}
		types = append(types, ev.Type)
	}
	return types
}

func splitLines(raw []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range raw {
		if b == '\n' {
			lines = append(lines, raw[start:i])
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, raw[start:])
	}
	return lines
}

func TestBuildDAG_ChainsF3ThroughF6InOrder(t *testing.T) {
	plan := domain.Plan{ID: "plan-1"}
	nodes := BuildDAG(plan)

	if len(nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(nodes))
	}
	wantTypes := []domain.TaskType{domain.TaskAcquisition, domain.TaskMutation, domain.TaskFusion, domain.TaskRewrite}
	for i, want := range wantTypes {
		if nodes[i].Task.Type != want {
			t.Fatalf("node %d: want type %s, got %s", i, want, nodes[i].Task.Type)
		}
	}
	if len(nodes[0].DependsOn) != 0 {
		t.Fatalf("F3 should have no dependencies, got %v", nodes[0].DependsOn)
	}
	for i := 1; i < len(nodes); i++ {
		if len(nodes[i].DependsOn) != 1 || nodes[i].DependsOn[0] != nodes[i-1].Task.ID {
			t.Fatalf("node %d should depend on node %d, got %v", i, i-1, nodes[i].DependsOn)
		}
	}
}

func TestBuildDAG_IsDeterministicForSamePlan(t *testing.T) {
	plan := domain.Plan{ID: "plan-7"}
	a := BuildDAG(plan)
	b := BuildDAG(plan)
	for i := range a {
		if a[i].Task.ID != b[i].Task.ID {
			t.Fatalf("expected deterministic task ids, got %s vs %s", a[i].Task.ID, b[i].Task.ID)
		}
	}
}

func TestBuildDAG_RiskReductionFlagsOnlyFusionAndRewrite(t *testing.T) {
	nodes := BuildDAG(domain.Plan{ID: "plan-1"})
	for _, n := range nodes {
		want := n.Task.Type == domain.TaskFusion || n.Task.Type == domain.TaskRewrite
		if n.Task.RiskReduction != want {
			t.Fatalf("task %s: risk_reduction=%v, want %v", n.Task.Type, n.Task.RiskReduction, want)
		}
	}
}

func TestDAGExecutor_RunsNodesRespectingDependencyOrder(t *testing.T) {
	nodes := BuildDAG(domain.Plan{ID: "plan-1"})

	var mu sync.Mutex
	var order []domain.TaskType
	ledgerPath := filepath.Join(t.TempDir(), "ledger.jsonl")
	lg, err := ledger.Open(ledgerPath, nil, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer lg.Close()

	exec := NewDAGExecutor(func(ctx context.Context, node DAGNode) error {
		mu.Lock()
		order = append(order, node.Task.Type)
		mu.Unlock()
		return nil
	}, lg)

	if err := exec.Execute(context.Background(), nodes); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 executions, got %d", len(order))
	}
	wantTypes := []domain.TaskType{domain.TaskAcquisition, domain.TaskMutation, domain.TaskFusion, domain.TaskRewrite}
	for i, want := range wantTypes {
		if order[i] != want {
			t.Fatalf("execution %d: want %s, got %s", i, want, order[i])
		}
	}

	types := readEventTypes(t, ledgerPath)
	if len(types) != 2 || types[0] != "PLAN_ROUND_START" || types[1] != "PLAN_ROUND_END" {
		t.Fatalf("expected [PLAN_ROUND_START PLAN_ROUND_END], got %v", types)
	}
}

func TestDAGExecutor_StopsAtFirstFailureAndPropagatesIt(t *testing.T) {
	nodes := BuildDAG(domain.Plan{ID: "plan-1"})
	boom := errors.New("boom")

	exec := NewDAGExecutor(func(ctx context.Context, node DAGNode) error {
		if node.Task.Type == domain.TaskMutation {
			return boom
		}
		return nil
	}, nil)

	err := exec.Execute(context.Background(), nodes)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
}
