package governance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/observability"
	"github.com/peninaocubo/core/internal/scanner"
)

// Hub is the governance package's public entry point: it owns the release
// directory tree and ties the gate cascade, release assembly, content
// scan, signing, snapshot, atomic publish, rollback and freeze
// sub-components into the four operations spec §4.D exposes.
type Hub struct {
	ReleasesRoot string
	Cfg          Config
	scanner      *scanner.Scanner
	ledger       *ledger.Ledger
	metrics      *observability.Metrics
	log          *observability.Logger
}

// NewHub wires a Hub rooted at releasesRoot. ledger/metrics/log may be nil
// in tests that don't care about side-channel observability.
func NewHub(releasesRoot string, cfg Config, lg *ledger.Ledger, metrics *observability.Metrics, log *observability.Logger) *Hub {
	return &Hub{
		ReleasesRoot: releasesRoot,
		Cfg:          cfg,
		scanner:      scanner.New(),
		ledger:       lg,
		metrics:      metrics,
		log:          log,
	}
}

// Promote runs the full release pipeline from spec §4.D: gate cascade ->
// release assembly -> content scan -> snapshot -> sign -> atomic publish
// -> catalog update, recording RELEASE_CREATED then RELEASE_PUBLISHED (or
// a RELEASE_REJECTED_GATES/RELEASE_REJECTED_CANARY/RELEASE_QUARANTINED_DLP/
// RELEASE_FAILED event) on the ledger in that strict order.
func (h *Hub) Promote(ctx context.Context, state domain.State, plan domain.Plan, bundle domain.ExecutionBundle, canary domain.CanaryDecision, user string, versionBump string) (domain.PromoteResult, error) {
	decision := RunGateCascade(h.Cfg, h.ReleasesRoot, state, user, canary)
	h.recordGateOutcomes(decision.Results)
	if !decision.Passed {
		h.countRelease("rejected")
		rejectEvent := "RELEASE_REJECTED_GATES"
		if r, ok := decision.Results["canary"]; ok && !r.Passed {
			rejectEvent = "RELEASE_REJECTED_CANARY"
		}
		h.recordLedger(rejectEvent, map[string]any{"plan_id": plan.ID, "reason": decision.Reason})
		return domain.PromoteResult{Status: domain.StatusRejected, Reason: decision.Reason, GateResults: decision.Results}, nil
	}

	now := time.Now().UTC()
	bundleHash := plan.ID
	if bundle.BundleID != "" {
		bundleHash = bundle.BundleID
	}
	relID := releaseID(plan.ID, bundleHash, now)

	if err := os.MkdirAll(h.ReleasesRoot, 0o755); err != nil {
		return domain.PromoteResult{}, fmt.Errorf("prepare releases root: %w", err)
	}

	stagingDir, manifest, err := stageRelease(h.ReleasesRoot, relID, plan, bundle, latestHash(state), user)
	if err != nil {
		return domain.PromoteResult{}, fmt.Errorf("stage release: %w", err)
	}
	h.recordLedger("RELEASE_CREATED", map[string]any{"release_id": relID, "plan_id": plan.ID})

	hits, err := h.scanner.ScanDirectory(stagingDir)
	if err != nil {
		return domain.PromoteResult{}, fmt.Errorf("scan staging dir: %w", err)
	}
	if len(hits) > 0 {
		return h.quarantineForDLP(relID, stagingDir, hits)
	}

	snapPath, err := snapshot(h.ReleasesRoot, relID)
	if err != nil {
		return domain.PromoteResult{}, fmt.Errorf("snapshot: %w", err)
	}
	manifest.SnapBefore = snapPath

	secret, fromEnv := SigningSecret()
	if !fromEnv && h.log != nil {
		h.log.Warn("governance: signing with default insecure secret, set "+SigningSecretEnv, "release_id", relID)
	}
	unsigned, err := canonicalJSON(manifest)
	if err != nil {
		return domain.PromoteResult{}, err
	}
	manifest.Signature = SignManifest(secret, unsigned)

	if err := writeManifest(stagingDir, manifest); err != nil {
		return domain.PromoteResult{}, fmt.Errorf("write manifest: %w", err)
	}

	cat, err := publishRelease(h.ReleasesRoot, relID, stagingDir, manifest, plan.ID, versionBump)
	if err != nil {
		h.countRelease("failed")
		h.recordLedger("RELEASE_FAILED", map[string]any{"release_id": relID, "plan_id": plan.ID, "reason": err.Error()})
		return domain.PromoteResult{Status: domain.StatusFailed, Reason: err.Error()}, err
	}
	version := cat.Versions["latest"]
	h.recordLedger("RELEASE_PUBLISHED", map[string]any{"release_id": relID, "plan_id": plan.ID, "version": version})
	h.countRelease("published")

	return domain.PromoteResult{
		Status: domain.StatusPublished, ReleaseID: relID, Version: version,
		Manifest: &manifest, GateResults: decision.Results, WormProof: manifest.Signature,
	}, nil
}

func (h *Hub) quarantineForDLP(relID, stagingDir string, hits map[string][]scanner.Violation) (domain.PromoteResult, error) {
	quarantineDir := filepath.Join(h.ReleasesRoot, "quarantine", "dlp_"+relID)
	if err := os.MkdirAll(filepath.Dir(quarantineDir), 0o755); err != nil {
		return domain.PromoteResult{}, err
	}
	if err := os.Rename(stagingDir, quarantineDir); err != nil {
		return domain.PromoteResult{}, fmt.Errorf("quarantine staging dir: %w", err)
	}

	var violations []domain.ScanViolation
	for file, vs := range hits {
		for _, v := range vs {
			violations = append(violations, domain.ScanViolation{Type: v.Type, Count: v.Count, SampleTruncated: v.SampleTruncated, File: file})
			if h.metrics != nil {
				h.metrics.ScanViolations.WithLabelValues(v.Type).Add(float64(v.Count))
			}
		}
	}
	h.recordLedger("RELEASE_QUARANTINED_DLP", map[string]any{"release_id": relID, "reason": "dlp_scan_hit", "files": len(hits)})
	if h.metrics != nil {
		h.metrics.GovQuarantines.Inc()
	}
	h.countRelease("quarantined")
	return domain.PromoteResult{Status: domain.StatusQuarantined, Reason: "content scan found sensitive data", Violations: violations}, nil
}

// Rollback reverses a published release, per spec §4.D "Rollback operation".
func (h *Hub) Rollback(ctx context.Context, relID, approver string) (domain.PromoteResult, error) {
	if _, err := rollbackRelease(h.ReleasesRoot, relID, approver, h.Cfg.Approvers, time.Now().UTC()); err != nil {
		return domain.PromoteResult{Status: domain.StatusFailed, Reason: err.Error()}, err
	}
	h.recordLedger("RELEASE_ROLLBACKED", map[string]any{"release_id": relID, "approver": approver})
	if h.metrics != nil {
		h.metrics.GovRollbacks.Inc()
	}
	return domain.PromoteResult{Status: domain.StatusRollbacked, ReleaseID: relID}, nil
}

// Freeze halts all future promotions until Unfreeze is called.
func (h *Hub) Freeze(ctx context.Context, reason string) (domain.PromoteResult, error) {
	if err := Freeze(h.ReleasesRoot); err != nil {
		return domain.PromoteResult{}, err
	}
	h.recordLedger("SYSTEM_FROZEN", map[string]any{"reason": reason})
	return domain.PromoteResult{Status: domain.StatusFrozen, Reason: reason}, nil
}

// Unfreeze lifts a prior Freeze.
func (h *Hub) Unfreeze(ctx context.Context) (domain.PromoteResult, error) {
	if err := Unfreeze(h.ReleasesRoot); err != nil {
		return domain.PromoteResult{}, err
	}
	h.recordLedger("SYSTEM_UNFROZEN", map[string]any{})
	return domain.PromoteResult{Status: domain.StatusUnfrozen}, nil
}

func (h *Hub) recordLedger(eventType string, data map[string]any) {
	if h.ledger == nil {
		return
	}
	if _, err := h.ledger.Record(eventType, data); err != nil && h.log != nil {
		h.log.Error("governance: ledger record failed", "event", eventType, "error", err)
	}
}

func (h *Hub) recordGateOutcomes(results map[string]domain.GateResult) {
	if h.metrics == nil {
		return
	}
	for gate, r := range results {
		outcome := "pass"
		if !r.Passed {
			outcome = "fail"
		}
		h.metrics.GovGateOutcomes.WithLabelValues(gate, outcome).Inc()
	}
}

func (h *Hub) countRelease(status string) {
	if h.metrics != nil {
		h.metrics.GovReleases.WithLabelValues(status).Inc()
	}
}

// latestHash returns the tail of the state's audit hash chain, or "" for a
// state with no recorded hashes yet.
func latestHash(state domain.State) string {
	if len(state.Hashes) == 0 {
		return ""
	}
	return state.Hashes[len(state.Hashes)-1]
}
