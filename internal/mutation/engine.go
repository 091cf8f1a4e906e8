// Package mutation implements the mutation-and-ranking engine (§4.B): it
// turns a system state, a plan, and acquired evidence into a bounded,
// scored, trust-region-contained set of candidate mutations, using a
// sandboxed evaluation layer and a surrogate predictor with confidence
// intervals.
package mutation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/genespace"
	"github.com/peninaocubo/core/internal/ledger"
	"github.com/peninaocubo/core/internal/observability"
)

// Config holds the engine's tunable defaults (§4.B, §9 "Governance config"
// equivalents for the mutation engine).
type Config struct {
	NCandidates       int
	TopK              int
	HistorySize       int
	EceMax            float64
	RhoMax            float64
	LambdaRho         float64
	Epsilon           float64
	Kappa             float64
	DiversityMin      float64
	ElitismEnabled    bool
	ArtifactDir       string
	Sandbox           SandboxConfig
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() Config {
	return Config{
		NCandidates:    40,
		TopK:           5,
		HistorySize:    1000,
		EceMax:         0.15,
		RhoMax:         0.8,
		LambdaRho:      0.5,
		Epsilon:        1e-6,
		Kappa:          5.0,
		DiversityMin:   0.3,
		ElitismEnabled: true,
		ArtifactDir:    "var/mutation/bundles",
		Sandbox:        DefaultSandboxConfig(),
	}
}

// Observation is one newly-available (features-independent) real-world
// outcome fed back into a surrogate's training history ahead of a cycle.
type Observation struct {
	Target   string // "delta_linf" | "mdl_gain" | "ppl_ood"
	Features []float64
	Value    float64
}

// RunOptions parameterizes one engine cycle.
type RunOptions struct {
	NCandidates  int
	TopK         int
	Seed         int64
	Observations []Observation
}

// Engine is the mutation-and-ranking engine.
type Engine struct {
	space   genespace.Space
	cfg     Config
	ledger  *ledger.Ledger
	log     *observability.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	histDelta  *History
	histMDL    *History
	histPplOOD *History
}

// NewEngine constructs an Engine over the given gene space and config.
func NewEngine(space genespace.Space, cfg Config, l *ledger.Ledger, log *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		space:      space,
		cfg:        cfg,
		ledger:     l,
		log:        log,
		metrics:    metrics,
		histDelta:  NewHistory(cfg.HistorySize),
		histMDL:    NewHistory(cfg.HistorySize),
		histPplOOD: NewHistory(cfg.HistorySize),
	}
}

type candidateDraft struct {
	genotype       *Genotype
	ops            []string
	distance       float64
	params         map[string]any
	bench          BenchResult
	patches        []domain.Patch
	features       []float64
	provisional    float64
}

// Run executes one full mutation cycle (§4.B steps 1-12).
func (e *Engine) Run(ctx context.Context, state *domain.State, plan *domain.Plan, acq *domain.AcquisitionReport, opts RunOptions) (*domain.MutationBundle, *domain.State, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MutCycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	nCandidates := opts.NCandidates
	if nCandidates <= 0 {
		nCandidates = e.cfg.NCandidates
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	// Step 1: gate entry.
	if state.ECE > e.cfg.EceMax || state.Rho > e.cfg.RhoMax {
		e.abort(plan, "ethics_gate", fmt.Sprintf("ece=%.4f rho=%.4f", state.ECE, state.Rho))
		return nil, state, fmt.Errorf("mutation: ethics gate violation (ece=%.4f rho=%.4f)", state.ECE, state.Rho)
	}

	// Step 2: base genotype construction (DNA-Fabric).
	hashBase, rngSeed, err := cycleSeed(state, plan, acq, opts.Seed)
	if err != nil {
		return nil, state, fmt.Errorf("mutation: derive cycle seed: %w", err)
	}
	base := NewBaseGenotype(e.space, hashBase, acq)
	e.record("MUT_START", map[string]any{"plan_id": plan.ID, "hash_base": hashBase})
	e.record("MUT_GENOTYPE", map[string]any{"hash_base": hashBase, "schema_version": base.SchemaVersion})

	rng := rand.New(rand.NewSource(rngSeed))
	r := state.TrustRegionRadius
	if r <= 0 {
		r = 0.1
	}

	// Step 3: generation (EDNAG).
	var drafts []candidateDraft
	var elite *Genotype
	eliteScore := math.Inf(-1)

	spentCost := 0.0
	budgetExhausted := false

	for i := 0; i < nCandidates; i++ {
		if ctx.Err() != nil {
			break
		}
		child, ops := Mutate(rng, e.space, base, elite, r, state.SRScore)

		dist := HybridDistance(e.space, base, child)
		if dist > r*(1+1e-6) {
			e.record("MUT_SKIP_TR", map[string]any{"distance": dist, "radius": r})
			if e.metrics != nil {
				e.metrics.MutCandidatesSkippedTR.Inc()
			}
			continue
		}

		params := Denormalized(e.space, child)
		bench := MicroBenchmark(params, acq)

		if plan.Budgets.MaxCost > 0 && spentCost+bench.Cost > plan.Budgets.MaxCost {
			e.record("MUT_SKIP_BUDGET", map[string]any{"spent": spentCost, "max_cost": plan.Budgets.MaxCost})
			if e.metrics != nil {
				e.metrics.MutCandidatesSkippedBudget.Inc()
			}
			budgetExhausted = true
			break
		}

		patches := diffPatches(e.space, base, child, params)
		snippet := SnippetFor(ops, patchPayloads(patches)...)
		sandboxResult := RunSandbox(e.cfg.Sandbox, snippet, params, acq)
		if !sandboxResult.Passed {
			e.record("MUT_SANITIZE", map[string]any{"issues": sandboxResult.Issues})
			if e.metrics != nil {
				e.metrics.MutCandidatesRejectedSandbox.Inc()
			}
			continue
		}

		features := FeatureVector(e.space, params, bench, acq)
		provisional := (1 - bench.Risk) * (1 - bench.Cost) / (1 + dist)

		draft := candidateDraft{
			genotype:    child,
			ops:         ops,
			distance:    dist,
			params:      params,
			bench:       bench,
			patches:     patches,
			features:    features,
			provisional: provisional,
		}
		drafts = append(drafts, draft)
		spentCost += bench.Cost

		e.record("MUT_CANDIDATE", map[string]any{"hash_base": child.HashBase, "ops": ops, "distance": dist})
		if e.metrics != nil {
			e.metrics.MutCandidatesGenerated.Inc()
		}

		if provisional > eliteScore {
			eliteScore = provisional
			elite = child.Clone()
		}
	}

	if e.cfg.ElitismEnabled && elite != nil {
		params := Denormalized(e.space, elite)
		bench := MicroBenchmark(params, acq)
		patches := diffPatches(e.space, base, elite, params)
		features := FeatureVector(e.space, params, bench, acq)
		drafts = append(drafts, candidateDraft{
			genotype:    elite,
			ops:         []string{"elite"},
			distance:    0.0, // elite candidate is re-admitted verbatim, not a new mutation step away from base

			params:      params,
			bench:       bench,
			patches:     patches,
			features:    features,
			provisional: eliteScore,
		})
	}

	if len(drafts) == 0 {
		reason := "no_valid_candidates"
		if budgetExhausted {
			reason = "budget_exhausted"
		}
		e.abort(plan, reason, "")
		return nil, state, fmt.Errorf("mutation: %s", reason)
	}

	// Step 7: surrogate fit, one per target.
	e.mu.Lock()
	for _, obs := range opts.Observations {
		switch obs.Target {
		case "delta_linf":
			e.histDelta.Append(Sample{Features: obs.Features, Target: obs.Value})
		case "mdl_gain":
			e.histMDL.Append(Sample{Features: obs.Features, Target: obs.Value})
		case "ppl_ood":
			e.histPplOOD.Append(Sample{Features: obs.Features, Target: obs.Value})
		}
	}
	deltaSurrogate := SelectSurrogate(e.histDelta.Samples)
	deltaSurrogate.Fit(e.histDelta.Samples)
	mdlSurrogate := SelectSurrogate(e.histMDL.Samples)
	mdlSurrogate.Fit(e.histMDL.Samples)
	pplSurrogate := SelectSurrogate(e.histPplOOD.Samples)
	pplSurrogate.Fit(e.histPplOOD.Samples)
	e.mu.Unlock()

	surrogateReport := domain.SurrogateReport{
		DeltaLinf: deltaSurrogate.Report(),
		MDLGain:   mdlSurrogate.Report(),
		PplOOD:    pplSurrogate.Report(),
	}

	// Steps 8-9: predict with CI, clamp, safe-utility score.
	candidates := make([]domain.Candidate, 0, len(drafts))
	for i, d := range drafts {
		deltaPred := clampPred(deltaSurrogate.Predict(rng, d.features), 0, math.Inf(1))
		mdlPred := clampPred(mdlSurrogate.Predict(rng, d.features), 0, math.Inf(1))
		pplPred := clampPred(pplSurrogate.Predict(rng, d.features), 1, math.Inf(1))

		combinedGain := CombinedGain(deltaPred.Point, mdlPred.Point, pplPred.Point)
		score := Score(ScoreParams{
			CombinedGain: combinedGain,
			CaosPost:     state.CaosPost,
			SRScore:      state.SRScore,
			Cost:         d.bench.Cost,
			Risk:         d.bench.Risk,
			TRDist:       d.distance,
			TRRadius:     r,
			LambdaRho:    e.cfg.LambdaRho,
			Epsilon:      e.cfg.Epsilon,
			Kappa:        e.cfg.Kappa,
		})

		candID := deterministicCandID(hashBase, i, d.ops)
		cand := domain.Candidate{
			CandID:         candID,
			ParentIDs:      d.genotype.ParentHashes,
			OpSeq:          d.ops,
			DistanceToBase: d.distance,
			Patches:        d.patches,
			EnvCaps: domain.EnvCaps{
				MaxCPUSeconds: 30,
				MaxMemoryMB:   512,
				MaxLatencyMs:  5000,
			},
			PredMetrics: domain.PredMetrics{
				DeltaLinf: domain.PredMetric{Point: deltaPred.Point, CILow: deltaPred.CILow, CIHigh: deltaPred.CIHigh},
				MDLGain:   domain.PredMetric{Point: mdlPred.Point, CILow: mdlPred.CILow, CIHigh: mdlPred.CIHigh},
				PplOOD:    domain.PredMetric{Point: pplPred.Point, CILow: pplPred.CILow, CIHigh: pplPred.CIHigh},
			},
			RiskEstimate:    d.bench.Risk,
			CostEstimate:    d.bench.Cost,
			LatencyEstimate: d.bench.LatencyMs,
			Score:           score,
			Explain:         fmt.Sprintf("ops=%v distance=%.4f combined_gain=%.4f", d.ops, d.distance, combinedGain),
			ProofID:         deterministicProofID(hashBase, candID),
		}
		candidates = append(candidates, cand)

		e.record("MUT_SCORE", map[string]any{"cand_id": candID, "score": score})
	}

	// Step 10: diverse top-K selection.
	selected := DiverseTopK(candidates, topK, e.cfg.DiversityMin)
	minDiv := computeMinPairwiseDiversity(selected)

	// Step 11: state update.
	updated := state.Clone()
	if len(selected) > 0 {
		var deltaSum, mdlSum, pplSum float64
		for _, c := range selected {
			deltaSum += c.PredMetrics.DeltaLinf.Point
			mdlSum += c.PredMetrics.MDLGain.Point
			pplSum += c.PredMetrics.PplOOD.Point
		}
		n := float64(len(selected))
		updated.DeltaLinfPred = deltaSum / n
		updated.MDLGainPred = mdlSum / n
		updated.PplOODPred = pplSum / n
	}
	candIDs := make([]string, 0, len(selected))
	for _, c := range selected {
		candIDs = append(candIDs, c.CandID)
	}
	updated.AppendHash(hashBase)
	updated.AppendHash(hashCandIDs(candIDs))
	updated.AppendProof(deterministicProofID(hashBase, "start"))
	for i, c := range selected {
		if i >= 3 {
			break
		}
		updated.AppendProof(c.ProofID)
	}
	applyCapabilityFlags(updated, selected)
	updated.CycleCount++

	// Step 12: bundle packaging.
	bundleID := deterministicBundleID(hashBase)
	stagingDir := filepath.Join(os.TempDir(), "mutation-bundle-"+bundleID)
	artifactPath := filepath.Join(e.cfg.ArtifactDir, bundleID+".zip")

	bundle := domain.MutationBundle{
		BundleID:        bundleID,
		PlanHash:        hashBase,
		Seed:            rngSeed,
		TopK:            selected,
		SurrogateReport: surrogateReport,
		DiversitySummary: domain.DiversitySummary{
			MinPairwiseDiversity: minDiv,
			FillerUsed:           len(selected) < topK,
			Threshold:            e.cfg.DiversityMin,
		},
		ArtifactPath: artifactPath,
	}

	if err := PackageBundle(stagingDir, artifactPath, bundle); err != nil {
		return nil, state, fmt.Errorf("mutation: package bundle: %w", err)
	}

	e.record("MUT_BUNDLE", map[string]any{"bundle_id": bundleID, "artifact_path": artifactPath, "n_selected": len(selected)})
	if e.metrics != nil {
		e.metrics.MutBundlesProduced.Inc()
	}
	e.record("MUT_DONE", map[string]any{"bundle_id": bundleID, "cycle_count": updated.CycleCount})

	return &bundle, updated, nil
}

func (e *Engine) abort(plan *domain.Plan, reason, detail string) {
	planID := ""
	if plan != nil {
		planID = plan.ID
	}
	e.record("MUT_ABORT", map[string]any{"plan_id": planID, "reason": reason, "detail": detail})
	if e.metrics != nil {
		e.metrics.MutAborts.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) record(eventType string, data map[string]any) {
	if e.ledger == nil {
		return
	}
	hash, err := e.ledger.Record(eventType, data)
	if err != nil {
		if e.log != nil {
			e.log.Error("ledger record failed", "event_type", eventType, "error", err)
		}
		return
	}
	if e.log != nil {
		e.log.LedgerEvent(eventType, hash)
	}
}

func clampPred(p Prediction, lo, hi float64) Prediction {
	p.Point = math.Max(lo, math.Min(hi, p.Point))
	if p.CILow < lo {
		p.CILow = lo
	}
	if !math.IsInf(hi, 1) && p.CIHigh > hi {
		p.CIHigh = hi
	}
	return p
}

func diffPatches(space genespace.Space, base, child *Genotype, params map[string]any) []domain.Patch {
	var patches []domain.Patch
	for _, gene := range space.Genes {
		bv, ok1 := base.Values[gene.Name]
		cv, ok2 := child.Values[gene.Name]
		if !ok1 || !ok2 || math.Abs(bv-cv) < 1e-9 {
			continue
		}
		patches = append(patches, domain.Patch{
			Path: gene.Name,
			Payload: map[string]string{
				"value": fmt.Sprintf("%v", params[gene.Name]),
			},
		})
	}
	return patches
}

func patchPayloads(patches []domain.Patch) []map[string]string {
	out := make([]map[string]string, 0, len(patches))
	for _, p := range patches {
		out = append(out, p.Payload)
	}
	return out
}

func applyCapabilityFlags(state *domain.State, selected []domain.Candidate) {
	for _, c := range selected {
		for _, p := range c.Patches {
			switch p.Path {
			case "quant.enabled":
				state.Capabilities.QuantizationEnabled = p.Payload["value"] == "true"
			case "pruning.enabled":
				state.Capabilities.PruningEnabled = p.Payload["value"] == "true"
			case "distillation.enabled":
				state.Capabilities.DistillationEnabled = p.Payload["value"] == "true"
			case "rag.enabled":
				state.Capabilities.RAGEnabled = p.Payload["value"] == "true"
			}
		}
	}
}

func computeMinPairwiseDiversity(selected []domain.Candidate) float64 {
	if len(selected) < 2 {
		return 1
	}
	maxScore := selected[0].Score
	for _, c := range selected {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	min := math.Inf(1)
	for i := 0; i < len(selected); i++ {
		for j := i + 1; j < len(selected); j++ {
			d := CandidateDiversity(selected[i], selected[j], maxScore)
			if d < min {
				min = d
			}
		}
	}
	return min
}

func hashCandIDs(ids []string) string {
	sum := 0
	for _, id := range ids {
		for _, r := range id {
			sum = sum*31 + int(r)
		}
	}
	return fmt.Sprintf("candset_%x", uint32(sum))
}

// deterministicCandID, deterministicProofID, and deterministicBundleID are
// derived purely from the cycle hash and a position/label — never from
// uuid.New() or time.Now(), per the determinism property.
func deterministicCandID(hashBase string, i int, ops []string) string {
	return fmt.Sprintf("cand_%03d_%s", i, shortHash(fmt.Sprintf("%s|%d|%v", hashBase, i, ops)))
}

func deterministicProofID(hashBase, label string) string {
	return "proof_" + shortHash(hashBase+"|"+label)
}

func deterministicBundleID(hashBase string) string {
	return "bundle_" + shortHash(hashBase)
}

func shortHash(s string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(s))
	return u.String()[:12]
}
