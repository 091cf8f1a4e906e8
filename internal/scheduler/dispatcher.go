package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/observability"
)

// DispatcherConfig tunes the tick loop (§4.C "Dispatcher").
type DispatcherConfig struct {
	TickInterval     time.Duration
	MaxConcurrent    int
	LeaseDuration    time.Duration
	SampleLimit      int
	BreakerThreshold int
	ShutdownTimeout  time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		TickInterval:     200 * time.Millisecond,
		MaxConcurrent:    4,
		LeaseDuration:    30 * time.Second,
		SampleLimit:      200,
		BreakerThreshold: 3,
		ShutdownTimeout:  3 * time.Second,
	}
}

// Executor runs one leased task to completion. A nil error means success;
// permanent indicates the failure should not be retried.
type Executor func(ctx context.Context, t domain.Task) (permanent bool, err error)

// GateInputsFunc supplies the live Omega-state gate readings for a task's
// plan at selection time.
type GateInputsFunc func(ctx context.Context, planID string) (GateInputs, error)

// Dispatcher is the scheduler's tick loop: sample pending tasks, score them,
// lease the best eligible one per available slot, and run it.
type Dispatcher struct {
	store    *Store
	cfg      DispatcherConfig
	gateFn   GateInputsFunc
	exec     Executor
	ledger   *ledger.Ledger
	metrics  *observability.Metrics
	log      *observability.Logger
	owner    string

	mu       sync.Mutex
	inflight int
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewDispatcher(store *Store, cfg DispatcherConfig, gateFn GateInputsFunc, exec Executor, lg *ledger.Ledger, metrics *observability.Metrics, log *observability.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		cfg:     cfg,
		gateFn:  gateFn,
		exec:    exec,
		ledger:  lg,
		metrics: metrics,
		log:     log,
		owner:   "dispatcher_" + uuid.NewString()[:8],
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled, then waits up to ShutdownTimeout for
// in-flight tasks before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()
	defer close(d.doneCh)

	if d.ledger != nil {
		d.ledger.Record("SCHED_START", map[string]any{"owner": d.owner})
	}

	for {
		select {
		case <-ctx.Done():
			d.waitForDrain()
			if d.ledger != nil {
				d.ledger.Record("SCHED_STOP", map[string]any{"owner": d.owner})
			}
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) waitForDrain() {
	deadline := time.Now().Add(d.cfg.ShutdownTimeout)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		n := d.inflight
		d.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := d.store.ReclaimExpiredLeases(ctx, now); err == nil && n > 0 && d.log != nil {
		d.log.Warn("reclaimed expired leases", "count", n)
	}

	d.mu.Lock()
	free := d.cfg.MaxConcurrent - d.inflight
	d.mu.Unlock()
	if free <= 0 {
		return
	}

	tasks, err := d.store.SamplePending(ctx, d.cfg.SampleLimit)
	if err != nil || len(tasks) == 0 {
		return
	}

	candidates := make([]scoredTask, 0, len(tasks))
	for _, t := range tasks {
		gate, err := d.gateFn(ctx, t.PlanID)
		if err != nil {
			continue
		}
		blocked, err := d.budgetBlocked(ctx, t.PlanID)
		if err != nil {
			continue
		}
		breakerOpen, err := d.store.BreakerOpen(ctx, t.Domain)
		if err != nil {
			continue
		}
		if !Eligible(t, gate, blocked, breakerOpen) {
			continue
		}
		u := Utility(t, gate, float64(now.Unix()), blocked, breakerOpen)
		candidates = append(candidates, scoredTask{task: t, score: u})
	}

	sortScoredDesc(candidates)

	taken := 0
	for _, c := range candidates {
		if taken >= free {
			break
		}
		until := now.Add(d.cfg.LeaseDuration)
		ok, err := d.store.TryLease(ctx, c.task.ID, d.owner, until)
		if err != nil || !ok {
			continue
		}
		taken++
		d.mu.Lock()
		d.inflight++
		d.mu.Unlock()
		d.recordEvent("SCHED_TAKE", c.task, map[string]any{"score": c.score, "owner": d.owner})
		go d.run(ctx, c.task)
	}

	if d.metrics != nil {
		d.metrics.SchedQueueDepth.Set(float64(len(tasks)))
	}
}

func (d *Dispatcher) run(ctx context.Context, t domain.Task) {
	defer func() {
		d.mu.Lock()
		d.inflight--
		d.mu.Unlock()
	}()

	_, _ = d.store.Debit(ctx, t.PlanID, t.ExpectedCost)
	_ = d.store.Heartbeat(ctx, domain.Heartbeat{TaskID: t.ID, Owner: d.owner, Ts: time.Now().UTC()})

	permanent, err := d.exec(ctx, t)

	result, berr := d.store.RecordBreakerOutcome(ctx, t.Domain, err == nil, d.cfg.BreakerThreshold)
	if berr == nil && result.Transition != "" && d.metrics != nil {
		if result.Transition == "opened" {
			d.metrics.SchedBreakerOpen.WithLabelValues(t.Domain).Inc()
		} else {
			d.metrics.SchedBreakerClose.WithLabelValues(t.Domain).Inc()
		}
	}

	if err == nil {
		_ = d.store.Complete(ctx, t.ID)
		d.recordEvent("TASK_DONE", t, nil)
		if d.metrics != nil {
			d.metrics.SchedTaskTransitions.WithLabelValues(string(t.Type), "done").Inc()
		}
		return
	}

	status, ferr := d.store.Fail(ctx, t.ID, permanent)
	if ferr != nil {
		return
	}
	eventType := "TASK_FAIL"
	if status == domain.TaskDead {
		eventType = "TASK_DEAD"
	}
	d.recordEvent(eventType, t, map[string]any{"error": err.Error()})
	if d.metrics != nil {
		d.metrics.SchedTaskTransitions.WithLabelValues(string(t.Type), string(status)).Inc()
	}
}

func (d *Dispatcher) budgetBlocked(ctx context.Context, planID string) (bool, error) {
	b, err := d.store.GetBudget(ctx, planID)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	return b.Blocked, nil
}

func (d *Dispatcher) recordEvent(eventType string, t domain.Task, extra map[string]any) {
	data := map[string]any{"task_id": t.ID, "plan_id": t.PlanID, "type": string(t.Type)}
	for k, v := range extra {
		data[k] = v
	}
	if d.ledger != nil {
		hash, err := d.ledger.Record(eventType, data)
		if err == nil && d.log != nil {
			d.log.LedgerEvent(eventType, hash, "task_id", t.ID)
		}
	}
}

type scoredTask struct {
	task  domain.Task
	score float64
}

func sortScoredDesc(s []scoredTask) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && (s[j].score > s[j-1].score ||
			(s[j].score == s[j-1].score && s[j].task.ID < s[j-1].task.ID)) {
			s[j], s[j-1] = s[j-1], s[j]
			j--
		}
	}
}
