package scheduler

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/peninaocubo/core/internal/domain"
)

// BudgetState is the durable per-plan (max, used) tuple set (§4.C "Budget
// manager").
type BudgetState struct {
	PlanID        string
	MaxCost       float64
	UsedCost      float64
	MaxTokens     int64
	UsedTokens    int64
	MaxLLMCalls   int64
	UsedLLMCalls  int64
	MaxLatencyMs  int64
	UsedLatencyMs int64
	Blocked       bool
}

// EnsureBudget inserts the plan's budget row from its declared Budgets if
// one does not already exist; it never overwrites live usage.
func (s *Store) EnsureBudget(ctx context.Context, planID string, b domain.Budgets) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_budgets (plan_id, max_cost, max_tokens, max_llm_calls, max_latency_ms, status)
		VALUES (?, ?, ?, ?, ?, 'open')
		ON CONFLICT(plan_id) DO NOTHING`,
		planID, b.MaxCost, b.MaxTokens, b.MaxLLMCalls, b.MaxLatencyMs)
	if err != nil {
		return fmt.Errorf("ensure budget %s: %w", planID, err)
	}
	return nil
}

// GetBudget reads the current budget state for a plan.
func (s *Store) GetBudget(ctx context.Context, planID string) (*BudgetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b BudgetState
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT plan_id, max_cost, used_cost, max_tokens, used_tokens,
			max_llm_calls, used_llm_calls, max_latency_ms, used_latency_ms, status
		FROM plan_budgets WHERE plan_id = ?`, planID).Scan(
		&b.PlanID, &b.MaxCost, &b.UsedCost, &b.MaxTokens, &b.UsedTokens,
		&b.MaxLLMCalls, &b.UsedLLMCalls, &b.MaxLatencyMs, &b.UsedLatencyMs, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget %s: %w", planID, err)
	}
	b.Blocked = status == "blocked"
	return &b, nil
}

// Debit applies a best-effort, soft debit against a plan's budget at task
// start. Any exceeded limit flips status to blocked for the whole plan.
func (s *Store) Debit(ctx context.Context, planID string, cost domain.ExpectedCost) (blocked bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		UPDATE plan_budgets SET
			used_cost = used_cost + ?,
			used_tokens = used_tokens + ?,
			used_llm_calls = used_llm_calls + 1,
			used_latency_ms = used_latency_ms + ?
		WHERE plan_id = ?`, cost.Cost, cost.Tokens, cost.LatencyMs, planID)
	if err != nil {
		return false, fmt.Errorf("debit %s: %w", planID, err)
	}

	var maxCost, usedCost float64
	var maxTokens, usedTokens, maxCalls, usedCalls, maxLatency, usedLatency int64
	err = s.db.QueryRowContext(ctx, `
		SELECT max_cost, used_cost, max_tokens, used_tokens, max_llm_calls, used_llm_calls, max_latency_ms, used_latency_ms
		FROM plan_budgets WHERE plan_id = ?`, planID).Scan(
		&maxCost, &usedCost, &maxTokens, &usedTokens, &maxCalls, &usedCalls, &maxLatency, &usedLatency)
	if err != nil {
		return false, fmt.Errorf("read budget after debit %s: %w", planID, err)
	}

	exceeded := (maxCost > 0 && usedCost > maxCost) ||
		(maxTokens > 0 && usedTokens > maxTokens) ||
		(maxCalls > 0 && usedCalls > maxCalls) ||
		(maxLatency > 0 && usedLatency > maxLatency)

	if exceeded {
		if _, err := s.db.ExecContext(ctx, `UPDATE plan_budgets SET status = 'blocked' WHERE plan_id = ?`, planID); err != nil {
			return false, fmt.Errorf("block budget %s: %w", planID, err)
		}
		s.record("BUDGET_BLOCK", map[string]any{"plan_id": planID, "used_cost": usedCost, "max_cost": maxCost})
		return true, nil
	}
	return false, nil
}

// BreakerState is the per-domain failure counter (§4.C "Circuit breaker").
type BreakerState struct {
	Domain    string
	FailCount int
	Open      bool
}

// BreakerResult reports whether a transition (open or close) just occurred.
type BreakerResult struct {
	State      BreakerState
	Transition string // "", "opened", "closed"
}

// RecordBreakerOutcome applies one task outcome to the named domain's
// breaker, opening it after threshold consecutive failures and closing it
// on a success.
func (s *Store) RecordBreakerOutcome(ctx context.Context, domainName string, success bool, threshold int) (BreakerResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if threshold <= 0 {
		threshold = 3
	}

	var failCount int
	var open int
	err := s.db.QueryRowContext(ctx, `SELECT fail_count, open FROM breakers WHERE domain = ?`, domainName).Scan(&failCount, &open)
	if err == sql.ErrNoRows {
		failCount, open = 0, 0
	} else if err != nil {
		return BreakerResult{}, fmt.Errorf("read breaker %s: %w", domainName, err)
	}

	transition := ""
	if success {
		if open != 0 {
			transition = "closed"
		}
		failCount, open = 0, 0
	} else {
		failCount++
		if failCount >= threshold && open == 0 {
			open = 1
			transition = "opened"
		}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO breakers (domain, fail_count, open) VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET fail_count = excluded.fail_count, open = excluded.open`,
		domainName, failCount, open); err != nil {
		return BreakerResult{}, fmt.Errorf("write breaker %s: %w", domainName, err)
	}

	switch transition {
	case "opened":
		s.record("CB_OPEN", map[string]any{"domain": domainName, "fail_count": failCount})
	case "closed":
		s.record("CB_CLOSE", map[string]any{"domain": domainName})
	}

	return BreakerResult{
		State:      BreakerState{Domain: domainName, FailCount: failCount, Open: open != 0},
		Transition: transition,
	}, nil
}

// BreakerOpen reports whether the named domain's breaker is currently open.
func (s *Store) BreakerOpen(ctx context.Context, domainName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open int
	err := s.db.QueryRowContext(ctx, `SELECT open FROM breakers WHERE domain = ?`, domainName).Scan(&open)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read breaker %s: %w", domainName, err)
	}
	return open != 0, nil
}
