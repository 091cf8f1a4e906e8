package scheduler

import (
	"context"
	"testing"

	"github.com/peninaocubo/core/internal/domain"
)

func TestDebit_FlipsBlockedWhenCostExceeded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 1.0}); err != nil {
		t.Fatalf("ensure budget: %v", err)
	}

	blocked, err := s.Debit(ctx, "plan-1", domain.ExpectedCost{Cost: 0.5})
	if err != nil || blocked {
		t.Fatalf("unexpected block after partial debit: blocked=%v err=%v", blocked, err)
	}

	blocked, err = s.Debit(ctx, "plan-1", domain.ExpectedCost{Cost: 0.6})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !blocked {
		t.Fatalf("expected budget to block once used_cost exceeds max_cost")
	}

	b, err := s.GetBudget(ctx, "plan-1")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if !b.Blocked {
		t.Fatalf("expected persisted budget state to report blocked")
	}
}

func TestDebit_RecordsBudgetBlockLedgerEvent(t *testing.T) {
	s, path := newLedgerBackedStore(t)
	ctx := context.Background()

	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 1.0})
	s.Debit(ctx, "plan-1", domain.ExpectedCost{Cost: 2.0})

	types := readEventTypes(t, path)
	if len(types) != 1 || types[0] != "BUDGET_BLOCK" {
		t.Fatalf("expected [BUDGET_BLOCK], got %v", types)
	}
}

func TestRecordBreakerOutcome_RecordsCBOpenAndCloseLedgerEvents(t *testing.T) {
	s, path := newLedgerBackedStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.RecordBreakerOutcome(ctx, "mutation", false, 3); err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
	}
	if _, err := s.RecordBreakerOutcome(ctx, "mutation", true, 3); err != nil {
		t.Fatalf("record success: %v", err)
	}

	types := readEventTypes(t, path)
	if len(types) != 2 || types[0] != "CB_OPEN" || types[1] != "CB_CLOSE" {
		t.Fatalf("expected [CB_OPEN CB_CLOSE], got %v", types)
	}
}

func TestEnsureBudget_DoesNotResetExistingUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 10})
	s.Debit(ctx, "plan-1", domain.ExpectedCost{Cost: 3})

	// Re-declaring the same plan's budget must not wipe usage already
	// accounted for.
	s.EnsureBudget(ctx, "plan-1", domain.Budgets{MaxCost: 10})

	b, err := s.GetBudget(ctx, "plan-1")
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if b.UsedCost != 3 {
		t.Fatalf("expected used_cost to survive re-ensure, got %v", b.UsedCost)
	}
}

func TestRecordBreakerOutcome_OpensAtThresholdAndClosesOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := s.RecordBreakerOutcome(ctx, "mutation", false, 3)
		if err != nil {
			t.Fatalf("record failure %d: %v", i, err)
		}
		if res.State.Open {
			t.Fatalf("breaker should not open before threshold, attempt %d", i)
		}
	}

	res, err := s.RecordBreakerOutcome(ctx, "mutation", false, 3)
	if err != nil {
		t.Fatalf("record failure 3: %v", err)
	}
	if !res.State.Open || res.Transition != "opened" {
		t.Fatalf("expected breaker to open at threshold, got %+v", res)
	}

	open, err := s.BreakerOpen(ctx, "mutation")
	if err != nil || !open {
		t.Fatalf("expected breaker open via BreakerOpen: open=%v err=%v", open, err)
	}

	res, err = s.RecordBreakerOutcome(ctx, "mutation", true, 3)
	if err != nil {
		t.Fatalf("record success: %v", err)
	}
	if res.State.Open || res.Transition != "closed" {
		t.Fatalf("expected breaker to close on success, got %+v", res)
	}
}
