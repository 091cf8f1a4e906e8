package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

func eligibleGateInputs(ctx context.Context, planID string) (GateInputs, error) {
	return baseGateInputs(), nil
}

func TestDispatcher_LeasesAndCompletesEligibleTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 100})
	s.Push(ctx, sampleTask("t1"))

	var ran int32
	exec := func(ctx context.Context, task domain.Task) (bool, error) {
		atomic.AddInt32(&ran, 1)
		return false, nil
	}

	cfg := DefaultDispatcherConfig()
	cfg.TickInterval = 10 * time.Millisecond
	d := NewDispatcher(s, cfg, eligibleGateInputs, exec, nil, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	d.Run(runCtx)

	if atomic.LoadInt32(&ran) == 0 {
		t.Fatalf("expected the dispatcher to execute the pending task")
	}

	tasks, err := s.SamplePending(ctx, 10)
	if err != nil {
		t.Fatalf("sample pending: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected task to be completed and no longer pending, got %+v", tasks)
	}
}

func TestDispatcher_NeverExceedsMaxConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 100})
	for i := 0; i < 6; i++ {
		task := sampleTask(taskID(i))
		task.IdempotencyKey = "plan-1|" + taskID(i)
		s.Push(ctx, task)
	}

	var mu sync.Mutex
	var peak, current int32
	release := make(chan struct{})
	exec := func(ctx context.Context, task domain.Task) (bool, error) {
		n := atomic.AddInt32(&current, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		<-release
		atomic.AddInt32(&current, -1)
		return false, nil
	}

	cfg := DefaultDispatcherConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.MaxConcurrent = 2
	d := NewDispatcher(s, cfg, eligibleGateInputs, exec, nil, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	go d.Run(runCtx)

	time.Sleep(100 * time.Millisecond)
	close(release)
	cancel()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if peak > int32(cfg.MaxConcurrent) {
		t.Fatalf("expected at most %d concurrent executions, saw %d", cfg.MaxConcurrent, peak)
	}
}

func TestDispatcher_FailedTaskGoesDeadAfterMaxAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 100})
	task := sampleTask("t1")
	task.MaxAttempts = 1
	s.Push(ctx, task)

	exec := func(ctx context.Context, task domain.Task) (bool, error) {
		return false, errAlwaysFails
	}

	cfg := DefaultDispatcherConfig()
	cfg.TickInterval = 10 * time.Millisecond
	d := NewDispatcher(s, cfg, eligibleGateInputs, exec, nil, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	d.Run(runCtx)

	tasks, err := s.SamplePending(ctx, 10)
	if err != nil {
		t.Fatalf("sample pending: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected dead task to no longer be pending, got %+v", tasks)
	}
}

func TestDispatcher_RecordsLifecycleLedgerEvents(t *testing.T) {
	s, path := newLedgerBackedStore(t)
	ctx := context.Background()
	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 100})
	s.Push(ctx, sampleTask("t1"))

	exec := func(ctx context.Context, task domain.Task) (bool, error) {
		return false, nil
	}

	cfg := DefaultDispatcherConfig()
	cfg.TickInterval = 10 * time.Millisecond
	d := NewDispatcher(s, cfg, eligibleGateInputs, exec, s.ledger, nil, nil)

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	d.Run(runCtx)
	cancel()

	types := readEventTypes(t, path)
	want := map[string]bool{"ENQUEUE": false, "SCHED_START": false, "SCHED_TAKE": false, "TASK_DONE": false, "SCHED_STOP": false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("expected %s among recorded events, got %v", typ, types)
		}
	}
}

func taskID(i int) string {
	return "t" + string(rune('a'+i))
}

var errAlwaysFails = &dispatcherTestError{"always fails"}

type dispatcherTestError struct{ msg string }

func (e *dispatcherTestError) Error() string { return e.msg }
