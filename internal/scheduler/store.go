// Package scheduler implements the durable task queue, dispatcher,
// circuit breaker, watchdog, and canary manager described in §4.C: a
// transactional, WAL-durable store with at-least-once lease semantics and
// a non-compensatory utility-scored selection loop.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
)

// Store is the SQLite-backed durable queue, grounded on the teacher's
// storage.SQLiteStore (WAL pragma, mutex-guarded writes, schema-on-open)
// but with a schema shaped for tasks/heartbeats/budgets/breakers/canary
// windows instead of a generic key-value table.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	ledger *ledger.Ledger
}

// Open creates (or reopens) a durable store at path. Use ":memory:" for
// an ephemeral in-process store, e.g. in tests. The ledger may be nil in
// tests that don't care about the audit trail.
func Open(path string, lg *ledger.Ledger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		type             TEXT NOT NULL,
		payload          TEXT NOT NULL,
		priority         INTEGER NOT NULL DEFAULT 0,
		plan_id          TEXT NOT NULL,
		stage            TEXT NOT NULL,
		created          TEXT NOT NULL,
		status           TEXT NOT NULL,
		attempts         INTEGER NOT NULL DEFAULT 0,
		max_attempts     INTEGER NOT NULL DEFAULT 3,
		idempotency_key  TEXT NOT NULL UNIQUE,
		expected_gain    REAL NOT NULL DEFAULT 0,
		expected_cost    TEXT NOT NULL,
		risk_bound       TEXT NOT NULL,
		tr_radius        REAL NOT NULL DEFAULT 0,
		ttl_s            INTEGER NOT NULL DEFAULT 86400,
		lease_until      TEXT,
		owner            TEXT,
		domain           TEXT NOT NULL DEFAULT '',
		risk_reduction   INTEGER NOT NULL DEFAULT 0,
		last_heartbeat   TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_plan ON tasks(plan_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created);

	CREATE TABLE IF NOT EXISTS heartbeats (
		task_id    TEXT NOT NULL,
		owner      TEXT NOT NULL,
		ts         TEXT NOT NULL,
		rho        REAL NOT NULL,
		sr_score   REAL NOT NULL,
		caos_post  REAL NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		stage      TEXT NOT NULL,
		metrics    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_heartbeats_task ON heartbeats(task_id);

	CREATE TABLE IF NOT EXISTS plan_budgets (
		plan_id         TEXT PRIMARY KEY,
		max_cost        REAL NOT NULL DEFAULT 0,
		used_cost       REAL NOT NULL DEFAULT 0,
		max_tokens      INTEGER NOT NULL DEFAULT 0,
		used_tokens     INTEGER NOT NULL DEFAULT 0,
		max_llm_calls   INTEGER NOT NULL DEFAULT 0,
		used_llm_calls  INTEGER NOT NULL DEFAULT 0,
		max_latency_ms  INTEGER NOT NULL DEFAULT 0,
		used_latency_ms INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'open'
	);

	CREATE TABLE IF NOT EXISTS breakers (
		domain        TEXT PRIMARY KEY,
		fail_count    INTEGER NOT NULL DEFAULT 0,
		open          INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS canary_windows (
		window_id    TEXT PRIMARY KEY,
		plan_id      TEXT NOT NULL,
		traffic_pct  REAL NOT NULL,
		duration_s   INTEGER NOT NULL,
		criteria     TEXT NOT NULL,
		status       TEXT NOT NULL,
		opened_at    TEXT NOT NULL,
		evaluated_at TEXT,
		baseline     TEXT,
		canary       TEXT
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, ledger: lg}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Push inserts a task. If idempotency_key already exists, it is a no-op
// that returns the existing task's id and deduped=true (§4.C "Durable
// queue").
func (s *Store) Push(ctx context.Context, t domain.Task) (id string, deduped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM tasks WHERE idempotency_key = ?`, t.IdempotencyKey).Scan(&existing)
	if err == nil {
		return existing, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("check idempotency: %w", err)
	}

	expectedCost, _ := json.Marshal(t.ExpectedCost)
	riskBound, _ := json.Marshal(t.RiskBound)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, payload, priority, plan_id, stage, created, status,
			attempts, max_attempts, idempotency_key, expected_gain, expected_cost,
			risk_bound, tr_radius, ttl_s, owner, domain, risk_reduction)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Payload, t.Priority, t.PlanID, string(t.Stage),
		t.Created.UTC().Format(time.RFC3339Nano), string(domain.TaskPending),
		0, t.MaxAttempts, t.IdempotencyKey, t.ExpectedGain, string(expectedCost),
		string(riskBound), t.TrRadius, t.TTLSeconds, t.Owner, t.Domain, boolToInt(t.RiskReduction),
	)
	if err != nil {
		return "", false, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	s.record("ENQUEUE", map[string]any{"task_id": t.ID, "plan_id": t.PlanID, "type": string(t.Type), "stage": string(t.Stage)})
	return t.ID, false, nil
}

// record writes a ledger event if a ledger is configured; otherwise a no-op.
func (s *Store) record(eventType string, data map[string]any) {
	if s.ledger == nil {
		return
	}
	s.ledger.Record(eventType, data)
}

// SamplePending fetches up to limit pending tasks for the dispatcher to
// score (§4.C: "the scheduler samples up to 200 pending tasks").
func (s *Store) SamplePending(ctx context.Context, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, payload, priority, plan_id, stage, created, status, attempts,
			max_attempts, idempotency_key, expected_gain, expected_cost, risk_bound,
			tr_radius, ttl_s, lease_until, owner, domain, risk_reduction
		FROM tasks WHERE status = ? ORDER BY created LIMIT ?`, string(domain.TaskPending), limit)
	if err != nil {
		return nil, fmt.Errorf("sample pending: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TryLease atomically transitions a task from pending to leased (a
// compare-and-set on status), failing silently (ok=false) if another
// dispatcher tick already won the race.
func (s *Store) TryLease(ctx context.Context, id, owner string, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, owner = ?, lease_until = ?, last_heartbeat = ?
		WHERE id = ? AND status = ?`,
		string(domain.TaskLeased), owner, until.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano), id, string(domain.TaskPending))
	if err != nil {
		return false, fmt.Errorf("lease %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete marks a task done.
func (s *Store) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(domain.TaskDone), id)
	return err
}

// Fail records a failed attempt. If permanent or attempts now >=
// max_attempts, the task becomes dead; otherwise it re-enters pending.
func (s *Store) Fail(ctx context.Context, id string, permanent bool) (domain.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var attempts, maxAttempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM tasks WHERE id = ?`, id).Scan(&attempts, &maxAttempts); err != nil {
		return "", fmt.Errorf("read task %s: %w", id, err)
	}
	attempts++

	status := domain.TaskPending
	if permanent || attempts >= maxAttempts {
		status = domain.TaskDead
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ?, attempts = ?, owner = NULL, lease_until = NULL WHERE id = ?`,
		string(status), attempts, id); err != nil {
		return "", fmt.Errorf("update task %s: %w", id, err)
	}
	return status, nil
}

// ReclaimExpiredLeases returns leased-but-expired tasks to pending; this
// is the at-least-once recovery mechanism (§4.C "Lifecycle").
func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `SELECT id, plan_id, owner FROM tasks WHERE status = ? AND lease_until < ?`,
		string(domain.TaskLeased), cutoff)
	if err != nil {
		return 0, fmt.Errorf("find expired leases: %w", err)
	}
	var expired []struct{ id, planID, owner string }
	for rows.Next() {
		var e struct{ id, planID, owner string }
		var owner sql.NullString
		if err := rows.Scan(&e.id, &e.planID, &owner); err != nil {
			rows.Close()
			return 0, err
		}
		e.owner = owner.String
		expired = append(expired, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, owner = NULL, lease_until = NULL
		WHERE status = ? AND lease_until < ?`,
		string(domain.TaskPending), string(domain.TaskLeased), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	for _, e := range expired {
		s.record("LEASE_EXPIRED", map[string]any{"task_id": e.id, "plan_id": e.planID, "owner": e.owner})
	}
	return int(n), nil
}

// Heartbeat records a worker heartbeat and refreshes the task's last-seen
// timestamp (consumed by the watchdog's stall detector).
func (s *Store) Heartbeat(ctx context.Context, hb domain.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics, _ := json.Marshal(hb.Metrics)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeats (task_id, owner, ts, rho, sr_score, caos_post, elapsed_ms, stage, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hb.TaskID, hb.Owner, hb.Ts.UTC().Format(time.RFC3339Nano), hb.Rho, hb.SRScore,
		hb.CaosPost, hb.ElapsedMs, string(hb.Stage), string(metrics)); err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET last_heartbeat = ? WHERE id = ?`,
		hb.Ts.UTC().Format(time.RFC3339Nano), hb.TaskID)
	return err
}

// LastHeartbeat returns the most recent heartbeat time for a task.
func (s *Store) LastHeartbeat(ctx context.Context, taskID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT last_heartbeat FROM tasks WHERE id = ?`, taskID).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("read last_heartbeat %s: %w", taskID, err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw.String)
}

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		var typ, stage, status string
		var created string
		var expectedCostJSON, riskBoundJSON string
		var leaseUntil, owner sql.NullString
		var riskReduction int

		if err := rows.Scan(&t.ID, &typ, &t.Payload, &t.Priority, &t.PlanID, &stage, &created,
			&status, &t.Attempts, &t.MaxAttempts, &t.IdempotencyKey, &t.ExpectedGain,
			&expectedCostJSON, &riskBoundJSON, &t.TrRadius, &t.TTLSeconds, &leaseUntil,
			&owner, &t.Domain, &riskReduction); err != nil {
			return nil, err
		}
		t.Type = domain.TaskType(typ)
		t.Stage = domain.Stage(stage)
		t.Status = domain.TaskStatus(status)
		t.Created, _ = time.Parse(time.RFC3339Nano, created)
		if leaseUntil.Valid && leaseUntil.String != "" {
			t.LeaseUntil, _ = time.Parse(time.RFC3339Nano, leaseUntil.String)
		}
		if owner.Valid {
			t.Owner = owner.String
		}
		t.RiskReduction = riskReduction != 0
		json.Unmarshal([]byte(expectedCostJSON), &t.ExpectedCost)
		json.Unmarshal([]byte(riskBoundJSON), &t.RiskBound)
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
