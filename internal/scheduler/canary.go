package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/peninaocubo/core/internal/domain"
)

// CanaryManager owns canary window lifecycle: open, evaluate, and the
// resulting promote/rollback/timeout decision (§4.C "Canary manager").
type CanaryManager struct {
	store *Store
}

func NewCanaryManager(store *Store) *CanaryManager {
	return &CanaryManager{store: store}
}

// Open starts a new canary comparison window for a plan.
func (m *CanaryManager) Open(ctx context.Context, planID string, trafficPct float64, durationS int64, criteria domain.CanaryCriteria) (*domain.CanaryWindow, error) {
	w := &domain.CanaryWindow{
		WindowID:   deterministicWindowID(planID, durationS),
		PlanID:     planID,
		TrafficPct: trafficPct,
		DurationS:  durationS,
		Criteria:   criteria,
		Status:     domain.CanaryOpen,
		OpenedAt:   time.Now().UTC(),
	}
	if err := m.save(ctx, w); err != nil {
		return nil, err
	}
	m.store.record("CANARY_OPEN", map[string]any{"window_id": w.WindowID, "plan_id": planID, "traffic_pct": trafficPct})
	return w, nil
}

// RecordMetrics attaches baseline/canary telemetry snapshots ahead of
// Evaluate. Per §9 Open Question "Canary metric population", who supplies
// these is out of scope: an F5 worker or an external telemetry feeder
// calls this before the window's duration elapses.
func (m *CanaryManager) RecordMetrics(ctx context.Context, windowID string, baseline, canary domain.MetricSnapshot) error {
	w, err := m.Get(ctx, windowID)
	if err != nil {
		return err
	}
	if w == nil {
		return fmt.Errorf("canary window %s not found", windowID)
	}
	w.MetricsBaseline = baseline
	w.MetricsCanary = canary
	return m.save(ctx, w)
}

// Evaluate compares canary vs baseline telemetry against the window's
// criteria once its duration has elapsed, and persists the resulting
// status transition.
func (m *CanaryManager) Evaluate(ctx context.Context, windowID string, now time.Time) (*domain.CanaryWindow, error) {
	w, err := m.Get(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("canary window %s not found", windowID)
	}
	if w.Status != domain.CanaryOpen {
		return w, nil
	}
	if !w.Elapsed(now) {
		return w, nil
	}

	b, c := w.MetricsBaseline, w.MetricsCanary
	switch {
	case b == (domain.MetricSnapshot{}) && c == (domain.MetricSnapshot{}):
		// Window elapsed with no telemetry ever recorded: fail closed.
		w.Status = domain.CanaryTimeout
	case c.Rho-b.Rho > w.Criteria.ThresholdRhoSpike:
		w.Status = domain.CanaryRollback
	case b.SRScore-c.SRScore > w.Criteria.ThresholdSRDrop:
		w.Status = domain.CanaryRollback
	case c.PplOOD > b.PplOOD*(1+w.Criteria.ThresholdPplRegress):
		w.Status = domain.CanaryRollback
	default:
		w.Status = domain.CanaryPromote
	}
	w.EvaluatedAt = now.UTC()

	if err := m.save(ctx, w); err != nil {
		return nil, err
	}

	eventType := map[domain.CanaryStatus]string{
		domain.CanaryPromote:  "CANARY_PROMOTE",
		domain.CanaryRollback: "CANARY_ROLLBACK",
		domain.CanaryTimeout:  "CANARY_TIMEOUT",
	}[w.Status]
	if eventType != "" {
		m.store.record(eventType, map[string]any{"window_id": w.WindowID, "plan_id": w.PlanID})
	}
	return w, nil
}

// Get reads a canary window by id.
func (m *CanaryManager) Get(ctx context.Context, windowID string) (*domain.CanaryWindow, error) {
	return m.store.getCanaryWindow(ctx, windowID)
}

func (m *CanaryManager) save(ctx context.Context, w *domain.CanaryWindow) error {
	return m.store.saveCanaryWindow(ctx, w)
}

func deterministicWindowID(planID string, durationS int64) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d", planID, durationS)))
	return "canary_" + u.String()[:12]
}

func (s *Store) saveCanaryWindow(ctx context.Context, w *domain.CanaryWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	criteria, _ := json.Marshal(w.Criteria)
	baseline, _ := json.Marshal(w.MetricsBaseline)
	canary, _ := json.Marshal(w.MetricsCanary)

	var evaluatedAt *string
	if !w.EvaluatedAt.IsZero() {
		v := w.EvaluatedAt.UTC().Format(time.RFC3339Nano)
		evaluatedAt = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canary_windows (window_id, plan_id, traffic_pct, duration_s, criteria, status, opened_at, evaluated_at, baseline, canary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(window_id) DO UPDATE SET
			status = excluded.status, evaluated_at = excluded.evaluated_at,
			baseline = excluded.baseline, canary = excluded.canary`,
		w.WindowID, w.PlanID, w.TrafficPct, w.DurationS, string(criteria), string(w.Status),
		w.OpenedAt.UTC().Format(time.RFC3339Nano), evaluatedAt, string(baseline), string(canary))
	if err != nil {
		return fmt.Errorf("save canary window %s: %w", w.WindowID, err)
	}
	return nil
}

func (s *Store) getCanaryWindow(ctx context.Context, windowID string) (*domain.CanaryWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var w domain.CanaryWindow
	var status, openedAt string
	var evaluatedAt sql.NullString
	var criteriaJSON, baselineJSON, canaryJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT window_id, plan_id, traffic_pct, duration_s, criteria, status, opened_at, evaluated_at, baseline, canary
		FROM canary_windows WHERE window_id = ?`, windowID).Scan(
		&w.WindowID, &w.PlanID, &w.TrafficPct, &w.DurationS, &criteriaJSON, &status,
		&openedAt, &evaluatedAt, &baselineJSON, &canaryJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get canary window %s: %w", windowID, err)
	}

	w.Status = domain.CanaryStatus(status)
	w.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
	if evaluatedAt.Valid && evaluatedAt.String != "" {
		w.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedAt.String)
	}
	json.Unmarshal([]byte(criteriaJSON), &w.Criteria)
	json.Unmarshal([]byte(baselineJSON), &w.MetricsBaseline)
	json.Unmarshal([]byte(canaryJSON), &w.MetricsCanary)
	return &w, nil
}
