package mutation

import (
	"math"

	"github.com/peninaocubo/core/internal/genespace"
)

// HybridDistance implements §4.B step 4: per-gene contribution by type,
// combined into a single [0,1] normalized distance.
func HybridDistance(space genespace.Space, a, b *Genotype) float64 {
	var sqSum float64
	var hammingSum float64

	for _, gene := range space.Genes {
		av, aok := a.Values[gene.Name]
		bv, bok := b.Values[gene.Name]
		if !aok || !bok {
			continue
		}
		switch gene.Type {
		case genespace.Float, genespace.Int:
			d := av - bv
			sqSum += gene.Weight * d * d
		case genespace.Flag:
			if math.Round(av) != math.Round(bv) {
				hammingSum += gene.Weight
			}
		case genespace.Discrete:
			d := math.Abs(av - bv)
			if d > 0.1 {
				hammingSum += gene.Weight * d
			}
		}
	}

	euclid := math.Sqrt(sqSum)
	return math.Min(1, euclid+hammingSum)
}
