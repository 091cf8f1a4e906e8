package mutation

import (
	"math"
	"math/rand"

	"github.com/peninaocubo/core/internal/genespace"
)

// operatorKind is one of the four EDNAG mutation operators.
type operatorKind string

const (
	opPoint         operatorKind = "point"
	opSegment       operatorKind = "segment"
	opRecombination operatorKind = "recombination"
	opFlag          operatorKind = "flag"
	opElite         operatorKind = "elite"
)

// operatorWeights are the fixed sampling weights from §4.B step 3.
var operatorWeights = []struct {
	kind operatorKind
	w    float64
}{
	{opPoint, 0.40},
	{opSegment, 0.25},
	{opRecombination, 0.20},
	{opFlag, 0.15},
}

func sampleOperator(rng *rand.Rand) operatorKind {
	u := rng.Float64()
	var cum float64
	for _, ow := range operatorWeights {
		cum += ow.w
		if u < cum {
			return ow.kind
		}
	}
	return operatorWeights[len(operatorWeights)-1].kind
}

// srMultiplier is the SR-adaptive noise multiplier: dampened when the
// surrogate's R2-backed confidence is low, amplified when it is high.
func srMultiplier(srScore float64) float64 {
	switch {
	case srScore < 0.7:
		return 0.5
	case srScore > 0.9:
		return 1.2
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// mutatePoint mutates ceil(r*|M|*0.3) randomly chosen mutable genes by
// Gaussian noise of stddev 0.15*r*w_gene, SR-adaptive.
func mutatePoint(rng *rand.Rand, space genespace.Space, g *Genotype, r, srScore float64) []string {
	mutable := space.Mutable()
	n := int(math.Ceil(r * float64(len(mutable)) * 0.3))
	if n < 1 {
		n = 1
	}
	idxs := sampleDistinct(rng, mutable, n)
	mult := srMultiplier(srScore)
	for _, i := range idxs {
		gene, _ := space.Index(i)
		stddev := 0.15 * r * gene.Weight * mult
		g.Values[gene.Name] = clamp01(g.Values[gene.Name] + rng.NormFloat64()*stddev)
	}
	return []string{string(opPoint)}
}

// mutateSegment mutates a contiguous run of continuous genes.
func mutateSegment(rng *rand.Rand, space genespace.Space, g *Genotype, r, srScore float64) []string {
	cont := space.ContinuousMutable()
	if len(cont) == 0 {
		return []string{string(opSegment)}
	}
	runLen := int(math.Ceil(r * float64(len(cont)) * 0.5))
	if runLen < 1 {
		runLen = 1
	}
	if runLen > len(cont) {
		runLen = len(cont)
	}
	start := 0
	if len(cont) > runLen {
		start = rng.Intn(len(cont) - runLen + 1)
	}
	mult := srMultiplier(srScore)
	for _, i := range cont[start : start+runLen] {
		gene, _ := space.Index(i)
		stddev := 0.12 * r * gene.Weight * mult
		g.Values[gene.Name] = clamp01(g.Values[gene.Name] + rng.NormFloat64()*stddev)
	}
	return []string{string(opSegment)}
}

// mutateRecombination blends the child (already point-mutated) with a
// second parent gene-by-gene with probability 0.5.
func mutateRecombination(rng *rand.Rand, space genespace.Space, child *Genotype, other *Genotype, r, srScore float64) []string {
	mutatePoint(rng, space, child, r, srScore)
	if other == nil {
		return []string{string(opRecombination)}
	}
	for _, gene := range space.Genes {
		if !gene.Mutable {
			continue
		}
		bVal, ok := other.Values[gene.Name]
		if !ok {
			continue
		}
		if rng.Float64() >= 0.5 {
			continue
		}
		alpha := 0.3 + rng.Float64()*0.4
		aVal := child.Values[gene.Name]
		child.Values[gene.Name] = clamp01(alpha*aVal + (1-alpha)*bVal + rng.NormFloat64()*0.02)
	}
	return []string{string(opRecombination)}
}

// mutateFlag flips ceil(r*|F|) flag genes.
func mutateFlag(rng *rand.Rand, space genespace.Space, g *Genotype, r float64) []string {
	flags := space.FlagMutable()
	n := int(math.Ceil(r * float64(len(flags))))
	if n < 1 && len(flags) > 0 {
		n = 1
	}
	idxs := sampleDistinct(rng, flags, n)
	for _, i := range idxs {
		gene, _ := space.Index(i)
		if g.Values[gene.Name] >= 0.5 {
			g.Values[gene.Name] = 0.0
		} else {
			g.Values[gene.Name] = 1.0
		}
	}
	return []string{string(opFlag)}
}

// sampleDistinct picks up to n distinct values from pool without replacement.
func sampleDistinct(rng *rand.Rand, pool []int, n int) []int {
	if n >= len(pool) {
		out := append([]int(nil), pool...)
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	cp := append([]int(nil), pool...)
	rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	return cp[:n]
}

// Mutate applies one EDNAG operator (sampled from the fixed operator
// weights) to a clone of base, using elite as the secondary recombination
// parent when one exists. Returns the child genotype and the op sequence
// tag to record against the resulting candidate.
func Mutate(rng *rand.Rand, space genespace.Space, base *Genotype, elite *Genotype, r, srScore float64) (*Genotype, []string) {
	child := base.Clone()
	child.ParentHashes = []string{base.HashBase}

	switch sampleOperator(rng) {
	case opPoint:
		ops := mutatePoint(rng, space, child, r, srScore)
		return child, ops
	case opSegment:
		ops := mutateSegment(rng, space, child, r, srScore)
		return child, ops
	case opRecombination:
		ops := mutateRecombination(rng, space, child, elite, r, srScore)
		return child, ops
	default:
		ops := mutateFlag(rng, space, child, r)
		return child, ops
	}
}
