package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newLedgerBackedStore wires a real, file-backed ledger into a fresh
// in-memory store so tests can assert on recorded event types.
func newLedgerBackedStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	lg, err := ledger.Open(path, nil, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { lg.Close() })

	s, err := Open(":memory:", lg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sampleTask(id string) domain.Task {
	return domain.Task{
		ID:             id,
		Type:           domain.TaskMutation,
		PlanID:         "plan-1",
		Stage:          domain.StageShadow,
		Created:        time.Now().UTC(),
		MaxAttempts:    3,
		IdempotencyKey: "plan-1|" + id,
		Domain:         "mutation",
	}
}

// P5: pushing the same idempotency key twice never creates a second row.
func TestPush_IdempotentOnDuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, deduped1, err := s.Push(ctx, sampleTask("t1"))
	if err != nil || deduped1 {
		t.Fatalf("first push: id=%s deduped=%v err=%v", id1, deduped1, err)
	}

	dup := sampleTask("t2")
	dup.IdempotencyKey = "plan-1|t1"
	id2, deduped2, err := s.Push(ctx, dup)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if !deduped2 || id2 != id1 {
		t.Fatalf("expected dedup to return original id %s, got %s deduped=%v", id1, id2, deduped2)
	}
}

func TestSamplePending_ReturnsOnlyPendingTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Push(ctx, sampleTask("t1"))
	s.Push(ctx, sampleTask("t2"))

	ok, err := s.TryLease(ctx, "t1", "owner-a", time.Now().Add(time.Minute))
	if err != nil || !ok {
		t.Fatalf("lease t1: ok=%v err=%v", ok, err)
	}

	pending, err := s.SamplePending(ctx, 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "t2" {
		t.Fatalf("expected only t2 pending, got %+v", pending)
	}
}

// P6: a lease is acquired by exactly one caller under compare-and-swap.
func TestTryLease_OnlyOneWinnerUnderRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Push(ctx, sampleTask("t1"))

	until := time.Now().Add(time.Minute)
	ok1, err1 := s.TryLease(ctx, "t1", "owner-a", until)
	ok2, err2 := s.TryLease(ctx, "t1", "owner-b", until)

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if ok1 == ok2 {
		t.Fatalf("expected exactly one winner, got ok1=%v ok2=%v", ok1, ok2)
	}
}

func TestFail_RetriesUntilMaxAttemptsThenDead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := sampleTask("t1")
	task.MaxAttempts = 2
	s.Push(ctx, task)

	status, err := s.Fail(ctx, "t1", false)
	if err != nil {
		t.Fatalf("fail 1: %v", err)
	}
	if status != domain.TaskPending {
		t.Fatalf("expected retry (pending) after 1st failure, got %s", status)
	}

	status, err = s.Fail(ctx, "t1", false)
	if err != nil {
		t.Fatalf("fail 2: %v", err)
	}
	if status != domain.TaskDead {
		t.Fatalf("expected dead after reaching max attempts, got %s", status)
	}
}

func TestFail_PermanentGoesDeadImmediately(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	task := sampleTask("t1")
	task.MaxAttempts = 5
	s.Push(ctx, task)

	status, err := s.Fail(ctx, "t1", true)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if status != domain.TaskDead {
		t.Fatalf("expected immediate dead for permanent failure, got %s", status)
	}
}

func TestReclaimExpiredLeases_ReturnsTaskToPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Push(ctx, sampleTask("t1"))

	past := time.Now().Add(-time.Minute)
	if _, err := s.TryLease(ctx, "t1", "owner-a", past); err != nil {
		t.Fatalf("lease: %v", err)
	}

	n, err := s.ReclaimExpiredLeases(ctx, time.Now())
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed lease, got %d", n)
	}

	pending, err := s.SamplePending(ctx, 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected task back in pending pool, got %+v", pending)
	}
}

func TestHeartbeat_UpdatesLastHeartbeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Push(ctx, sampleTask("t1"))

	before, err := s.LastHeartbeat(ctx, "t1")
	if err != nil {
		t.Fatalf("last heartbeat before: %v", err)
	}
	if !before.IsZero() {
		t.Fatalf("expected zero heartbeat before any is recorded")
	}

	now := time.Now().UTC()
	if err := s.Heartbeat(ctx, domain.Heartbeat{TaskID: "t1", Owner: "owner-a", Ts: now}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	after, err := s.LastHeartbeat(ctx, "t1")
	if err != nil {
		t.Fatalf("last heartbeat after: %v", err)
	}
	if after.IsZero() || after.Unix() != now.Unix() {
		t.Fatalf("expected heartbeat time %v, got %v", now, after)
	}
}
