package mutation

import (
	"math"

	"github.com/peninaocubo/core/internal/domain"
)

// BenchResult is the micro-benchmark's deterministic heuristic output.
type BenchResult struct {
	LatencyMs float64
	Cost      float64
	Risk      float64
}

// MicroBenchmark implements §4.B step 5: a deterministic heuristic of
// concrete parameters and acquisition signals. Monotonically non-decreasing
// in rag.topk and batch.size, with flag penalties for quant/pruning and
// multiplicative uplifts driven by novelty/recall.
func MicroBenchmark(params map[string]any, acq *domain.AcquisitionReport) BenchResult {
	topK := floatParam(params, "rag.topk", 4)
	batch := floatParam(params, "batch.size", 32)
	chunkSize := floatParam(params, "rag.chunk_size", 512)

	latency := 20 + topK*3 + batch*0.4 + chunkSize*0.01
	cost := 0.02*(batch/256) + 0.03*(topK/20)
	risk := 0.05 + 0.02*(chunkSize/2048)

	if boolParam(params, "quant.enabled") {
		latency *= 0.85
		risk += 0.05
	}
	if boolParam(params, "pruning.enabled") {
		latency *= 0.9
		risk += 0.04
	}
	if boolParam(params, "distillation.enabled") {
		cost *= 0.8
		risk += 0.03
	}

	noveltySim := 0.5
	ragRecall := 0.5
	if acq != nil {
		noveltySim = clamp01(acq.NoveltySim)
		ragRecall = clamp01(acq.RAGRecall)
	}

	latency *= 1 + 0.2*(1-noveltySim)
	risk *= 1 + 0.15*(1-ragRecall)

	return BenchResult{
		LatencyMs: math.Max(0, latency),
		Cost:      clamp01(cost),
		Risk:      clamp01(risk),
	}
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	default:
		return fallback
	}
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
