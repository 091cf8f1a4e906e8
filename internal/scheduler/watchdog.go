package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/observability"
)

const (
	watchdogStallGapSeconds = 600
	watchdogRhoSpikeDelta   = 0.05
	watchdogSRDropDelta     = 0.05
)

// WatchdogAlert describes one anomaly the watchdog detected (§4.C
// "Watchdog"): it never stops tasks itself, only raises triggers that the
// dispatcher or a human operator acts on.
type WatchdogAlert struct {
	Kind     string // "stall", "rho_spike", "sr_drop"
	PlanID   string
	TaskID   string
	Detail   string
	RaisedAt time.Time
}

type planSignal struct {
	rho float64
	sr  float64
}

// Watchdog tracks the last-seen (rho, sr) per plan and the last heartbeat
// time per task, raising alerts on stall, rho-spike, or sr-drop.
type Watchdog struct {
	mu         sync.Mutex
	lastSignal map[string]planSignal
	store      *Store
	ledger     *ledger.Ledger
	log        *observability.Logger
}

func NewWatchdog(store *Store, lg *ledger.Ledger, log *observability.Logger) *Watchdog {
	return &Watchdog{
		lastSignal: make(map[string]planSignal),
		store:      store,
		ledger:     lg,
		log:        log,
	}
}

// ObserveState feeds a fresh Omega-state reading for a plan, raising
// rho_spike / sr_drop alerts against the previously observed signal.
func (w *Watchdog) ObserveState(planID string, s domain.State) []WatchdogAlert {
	w.mu.Lock()
	prev, seen := w.lastSignal[planID]
	w.lastSignal[planID] = planSignal{rho: s.Rho, sr: s.SRScore}
	w.mu.Unlock()

	if !seen {
		return nil
	}

	var alerts []WatchdogAlert
	if s.Rho-prev.rho > watchdogRhoSpikeDelta {
		alerts = append(alerts, WatchdogAlert{
			Kind:     "rho_spike",
			PlanID:   planID,
			Detail:   "rollback_trigger",
			RaisedAt: time.Now().UTC(),
		})
	}
	if prev.sr-s.SRScore > watchdogSRDropDelta {
		alerts = append(alerts, WatchdogAlert{
			Kind:     "sr_drop",
			PlanID:   planID,
			Detail:   "freeze_promotion_trigger",
			RaisedAt: time.Now().UTC(),
		})
	}
	for _, a := range alerts {
		w.record(a)
	}
	return alerts
}

// CheckStalls scans tasks for heartbeat gaps beyond watchdogStallGapSeconds.
func (w *Watchdog) CheckStalls(ctx context.Context, taskIDs []string, now time.Time) ([]WatchdogAlert, error) {
	var alerts []WatchdogAlert
	for _, id := range taskIDs {
		last, err := w.store.LastHeartbeat(ctx, id)
		if err != nil {
			return nil, err
		}
		if last.IsZero() {
			continue
		}
		if now.Sub(last).Seconds() > watchdogStallGapSeconds {
			a := WatchdogAlert{
				Kind:     "stall",
				TaskID:   id,
				Detail:   "heartbeat_gap_exceeded",
				RaisedAt: now,
			}
			alerts = append(alerts, a)
			w.record(a)
		}
	}
	return alerts, nil
}

func (w *Watchdog) record(a WatchdogAlert) {
	if w.ledger == nil {
		return
	}
	_, _ = w.ledger.Record("WATCHDOG_ALERT", map[string]any{
		"kind":   a.Kind,
		"plan":   a.PlanID,
		"task":   a.TaskID,
		"detail": a.Detail,
	})
	if w.log != nil {
		w.log.Warn("watchdog alert", "kind", a.Kind, "plan_id", a.PlanID, "task_id", a.TaskID, "detail", a.Detail)
	}

	actionEvent := map[string]string{
		"rollback_trigger":         "WATCHDOG_ROLLBACK",
		"freeze_promotion_trigger": "FREEZE_PROMOTION",
	}[a.Detail]
	if actionEvent == "" {
		return
	}
	_, _ = w.ledger.Record(actionEvent, map[string]any{
		"kind": a.Kind,
		"plan": a.PlanID,
		"task": a.TaskID,
	})
}
