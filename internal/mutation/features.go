package mutation

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/genespace"
)

// stringFold folds a string into [0,1) deterministically via SHA-256, used
// for discrete gene values in feature vectors (§4.B step 6).
func stringFold(s string) float64 {
	sum := sha256.Sum256([]byte(s))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(^uint64(0))
}

// FeatureVector implements §4.B step 6: a fixed-ordering concatenation of
// denormalized gene values plus the benchmark/acquisition tail.
func FeatureVector(space genespace.Space, params map[string]any, bench BenchResult, acq *domain.AcquisitionReport) []float64 {
	features := make([]float64, 0, len(space.Genes)+8)

	for _, gene := range space.Genes {
		v, ok := params[gene.Name]
		if !ok {
			features = append(features, 0)
			continue
		}
		switch t := v.(type) {
		case float64:
			features = append(features, t)
		case int:
			features = append(features, float64(t))
		case bool:
			if t {
				features = append(features, 1)
			} else {
				features = append(features, 0)
			}
		case string:
			features = append(features, stringFold(t))
		default:
			features = append(features, 0)
		}
	}

	var noveltySim, ragRecall float64
	var numQuestions, numDocs, numChunks float64
	if acq != nil {
		noveltySim = acq.NoveltySim
		ragRecall = acq.RAGRecall
		numQuestions = float64(len(acq.AnchorQuestions))
		numDocs = float64(acq.NumDocs)
		numChunks = float64(acq.NumChunks)
	}

	features = append(features,
		bench.LatencyMs/1000,
		bench.Cost,
		bench.Risk,
		noveltySim,
		ragRecall,
		numQuestions/10,
		numDocs/100,
		numChunks/1000,
	)
	return features
}
