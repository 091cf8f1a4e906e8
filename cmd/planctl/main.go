// Command planctl is the thin wiring entry point that assembles one
// pipeline cycle end-to-end for local/manual operation: run a mutation
// cycle, drive the scheduler dispatcher against a durable queue, or
// promote/rollback/freeze a release through the governance hub. It is not
// the end-user CLI surface (flags, packaging, UX) — just the minimum
// `main` needed to exercise the core end to end.
//
// Usage:
//
//	planctl mutate   -state s.json -plan p.json -acq a.json
//	planctl schedule -tasks tasks.json -duration 5s
//	planctl promote  -state s.json -plan p.json -bundle b.json -user alice
//	planctl rollback -release rel_2026-07-31_abcdef012345 -approver alice
//	planctl freeze   -reason "incident 1234"
//	planctl unfreeze
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/genespace"
	"github.com/peninaocubo/core/internal/governance"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/mutation"
	"github.com/peninaocubo/core/internal/observability"
	"github.com/peninaocubo/core/internal/scheduler"
)

const (
	defaultLedgerPath   = "var/ledger/events.jsonl"
	defaultQueuePath    = "var/scheduler/queue.db"
	defaultReleasesRoot = "var/releases"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: planctl <mutate|schedule|promote|rollback|freeze|unfreeze> [flags]")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "mutate":
		err = runMutate(os.Args[2:])
	case "schedule":
		err = runSchedule(os.Args[2:])
	case "promote":
		err = runPromote(os.Args[2:])
	case "rollback":
		err = runRollback(os.Args[2:])
	case "freeze":
		err = runFreeze(os.Args[2:])
	case "unfreeze":
		err = runUnfreeze(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "planctl:", err)
		os.Exit(1)
	}
}

func openLedger(log *observability.Logger, metrics *observability.Metrics) (*ledger.Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(defaultLedgerPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare ledger dir: %w", err)
	}
	return ledger.Open(defaultLedgerPath, log, metrics)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func runMutate(args []string) error {
	fs := flag.NewFlagSet("mutate", flag.ExitOnError)
	statePath := fs.String("state", "", "path to Omega-state JSON")
	planPath := fs.String("plan", "", "path to plan JSON")
	acqPath := fs.String("acq", "", "path to acquisition report JSON (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var state domain.State
	var plan domain.Plan
	var acq domain.AcquisitionReport
	if err := readJSON(*statePath, &state); err != nil {
		return err
	}
	if err := readJSON(*planPath, &plan); err != nil {
		return err
	}
	if *acqPath != "" {
		if err := readJSON(*acqPath, &acq); err != nil {
			return err
		}
	}

	log := observability.NewLogger("mutation", os.Stderr)
	metrics := observability.NewMetrics()
	lg, err := openLedger(log, metrics)
	if err != nil {
		return err
	}
	defer lg.Close()

	engine := mutation.NewEngine(genespace.Default(), mutation.DefaultConfig(), lg, log, metrics)
	bundle, newState, err := engine.Run(context.Background(), &state, &plan, &acq, mutation.RunOptions{})
	if err != nil {
		return fmt.Errorf("run mutation cycle: %w", err)
	}

	out := struct {
		Bundle *domain.MutationBundle `json:"bundle"`
		State  *domain.State          `json:"state"`
	}{bundle, newState}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runSchedule(args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	tasksPath := fs.String("tasks", "", "path to a JSON array of domain.Task")
	duration := fs.Duration("duration", 3*time.Second, "how long to run the dispatcher before draining")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var tasks []domain.Task
	if *tasksPath != "" {
		if err := readJSON(*tasksPath, &tasks); err != nil {
			return err
		}
	}

	log := observability.NewLogger("scheduler", os.Stderr)
	metrics := observability.NewMetrics()
	lg, err := openLedger(log, metrics)
	if err != nil {
		return err
	}
	defer lg.Close()

	if err := os.MkdirAll(filepath.Dir(defaultQueuePath), 0o755); err != nil {
		return fmt.Errorf("prepare queue dir: %w", err)
	}
	store, err := scheduler.Open(defaultQueuePath, lg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, t := range tasks {
		if err := store.EnsureBudget(ctx, t.PlanID, domain.Budgets{MaxCost: 1e9, MaxTokens: 1e12, MaxLLMCalls: 1e9, MaxLatencyMs: 1e12}); err != nil {
			return fmt.Errorf("ensure budget for plan %s: %w", t.PlanID, err)
		}
		if _, _, err := store.Push(ctx, t); err != nil {
			return fmt.Errorf("push task %s: %w", t.ID, err)
		}
	}

	gateFn := func(ctx context.Context, planID string) (scheduler.GateInputs, error) {
		return scheduler.GateInputs{
			Consent: true, EcoOK: true, RhoMax: 0.8, SRTau: 0.78, Kappa: 5.0, LambdaRho: 0.5,
		}, nil
	}
	exec := func(ctx context.Context, t domain.Task) (permanent bool, err error) {
		log.Info("executing task", "task_id", t.ID, "type", t.Type)
		return false, nil
	}

	dispatcher := scheduler.NewDispatcher(store, scheduler.DefaultDispatcherConfig(), gateFn, exec, lg, metrics, log)
	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()
	dispatcher.Run(runCtx)
	return nil
}

func runPromote(args []string) error {
	fs := flag.NewFlagSet("promote", flag.ExitOnError)
	statePath := fs.String("state", "", "path to Omega-state JSON")
	planPath := fs.String("plan", "", "path to plan JSON")
	bundlePath := fs.String("bundle", "", "path to domain.ExecutionBundle JSON")
	user := fs.String("user", "", "publishing user")
	canary := fs.String("canary", string(domain.DecisionPromote), "canary decision: promote|rollback|timeout")
	bump := fs.String("bump", "patch", "version bump: patch|minor|major")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var state domain.State
	var plan domain.Plan
	var bundle domain.ExecutionBundle
	if err := readJSON(*statePath, &state); err != nil {
		return err
	}
	if err := readJSON(*planPath, &plan); err != nil {
		return err
	}
	if *bundlePath != "" {
		if err := readJSON(*bundlePath, &bundle); err != nil {
			return err
		}
	}

	log := observability.NewLogger("governance", os.Stderr)
	metrics := observability.NewMetrics()
	lg, err := openLedger(log, metrics)
	if err != nil {
		return err
	}
	defer lg.Close()

	cfg, err := loadGovernanceConfig()
	if err != nil {
		return err
	}
	hub := governance.NewHub(defaultReleasesRoot, cfg, lg, metrics, log)
	result, err := hub.Promote(context.Background(), state, plan, bundle, domain.CanaryDecision(*canary), *user, *bump)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	return printJSON(result)
}

func runRollback(args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	releaseID := fs.String("release", "", "release id to roll back")
	approver := fs.String("approver", "", "approving user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := observability.NewLogger("governance", os.Stderr)
	metrics := observability.NewMetrics()
	lg, err := openLedger(log, metrics)
	if err != nil {
		return err
	}
	defer lg.Close()

	cfg, err := loadGovernanceConfig()
	if err != nil {
		return err
	}
	hub := governance.NewHub(defaultReleasesRoot, cfg, lg, metrics, log)
	result, err := hub.Rollback(context.Background(), *releaseID, *approver)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return printJSON(result)
}

func runFreeze(args []string) error {
	fs := flag.NewFlagSet("freeze", flag.ExitOnError)
	reason := fs.String("reason", "", "reason for freezing promotions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hub := governance.NewHub(defaultReleasesRoot, governance.DefaultConfig(), nil, nil, nil)
	result, err := hub.Freeze(context.Background(), *reason)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runUnfreeze(args []string) error {
	hub := governance.NewHub(defaultReleasesRoot, governance.DefaultConfig(), nil, nil, nil)
	result, err := hub.Unfreeze(context.Background())
	if err != nil {
		return err
	}
	return printJSON(result)
}

func loadGovernanceConfig() (governance.Config, error) {
	const path = "config/governance.json"
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return governance.DefaultConfig(), nil
		}
		return governance.Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	return governance.LoadConfig(raw)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
