// Package genespace declares the fixed gene-space dictionary the mutation
// engine denormalizes genotypes against. Per the design note on "Gene space
// as data" (spec §9), the table is a versioned immutable slice indexed by
// small integer ids internally; the gene name is only an external label.
package genespace

import "math"

// GeneType is the denormalization kind for one gene.
type GeneType string

const (
	Float    GeneType = "float"
	Int      GeneType = "int"
	Flag     GeneType = "flag"
	Discrete GeneType = "discrete"
)

// Gene is one declarative entry in the gene space.
type Gene struct {
	Name    string
	Type    GeneType
	Min     float64  // float/int
	Max     float64  // float/int
	Weight  float64
	Options []string // discrete
	Mutable bool
	// Anchor marks a flag gene that acquisition anchor questions can seed
	// deterministically (§4.B step 2).
	Anchor bool
	// Continuous genes (float/int) participate in "segment" mutation runs.
	Continuous bool
}

// Space is an ordered, immutable gene-space declaration. Ordering is fixed
// and is the ordering used by feature extraction (§4.B step 6).
type Space struct {
	Version int
	Genes   []Gene
}

// Index returns the gene at position i and whether i is valid.
func (s Space) Index(i int) (Gene, bool) {
	if i < 0 || i >= len(s.Genes) {
		return Gene{}, false
	}
	return s.Genes[i], true
}

// ByName returns the gene with the given name and its index.
func (s Space) ByName(name string) (Gene, int, bool) {
	for i, g := range s.Genes {
		if g.Name == name {
			return g, i, true
		}
	}
	return Gene{}, -1, false
}

// Mutable returns the indices of all mutable genes.
func (s Space) Mutable() []int {
	var out []int
	for i, g := range s.Genes {
		if g.Mutable {
			out = append(out, i)
		}
	}
	return out
}

// ContinuousMutable returns the indices of mutable float/int genes, which
// "segment" mutation operates over.
func (s Space) ContinuousMutable() []int {
	var out []int
	for i, g := range s.Genes {
		if g.Mutable && g.Continuous {
			out = append(out, i)
		}
	}
	return out
}

// FlagMutable returns the indices of mutable flag genes.
func (s Space) FlagMutable() []int {
	var out []int
	for i, g := range s.Genes {
		if g.Mutable && g.Type == Flag {
			out = append(out, i)
		}
	}
	return out
}

// Denormalize maps a [0,1] normalized value to the gene's concrete domain.
func Denormalize(g Gene, v float64) any {
	v = math.Min(1, math.Max(0, v))
	switch g.Type {
	case Float:
		return g.Min + v*(g.Max-g.Min)
	case Int:
		return int(math.Round(g.Min + v*(g.Max-g.Min)))
	case Flag:
		return math.Round(v) >= 1
	case Discrete:
		if len(g.Options) == 0 {
			return ""
		}
		idx := int(math.Floor(v * float64(len(g.Options))))
		if idx >= len(g.Options) {
			idx = len(g.Options) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return g.Options[idx]
	}
	return nil
}

// Default returns the fixed gene space exercised by a typical mutation
// cycle: tunables for a RAG-augmented learner's retrieval, batching,
// quantization, pruning, and distillation knobs. Concrete values and names
// are a deployment detail; this default set is enough to exercise every
// operator and gate the spec describes.
func Default() Space {
	return Space{
		Version: 1,
		Genes: []Gene{
			{Name: "rag.topk", Type: Int, Min: 1, Max: 20, Weight: 1.0, Mutable: true, Continuous: true},
			{Name: "rag.chunk_size", Type: Int, Min: 128, Max: 2048, Weight: 0.6, Mutable: true, Continuous: true},
			{Name: "batch.size", Type: Int, Min: 1, Max: 256, Weight: 0.8, Mutable: true, Continuous: true},
			{Name: "lr.scale", Type: Float, Min: 0.1, Max: 3.0, Weight: 1.0, Mutable: true, Continuous: true},
			{Name: "dropout", Type: Float, Min: 0.0, Max: 0.5, Weight: 0.4, Mutable: true, Continuous: true},
			{Name: "temperature", Type: Float, Min: 0.0, Max: 2.0, Weight: 0.5, Mutable: true, Continuous: true},
			{Name: "quant.enabled", Type: Flag, Weight: 0.9, Mutable: true, Anchor: true},
			{Name: "pruning.enabled", Type: Flag, Weight: 0.9, Mutable: true, Anchor: true},
			{Name: "distillation.enabled", Type: Flag, Weight: 0.7, Mutable: true, Anchor: true},
			{Name: "rag.enabled", Type: Flag, Weight: 0.6, Mutable: true, Anchor: true},
			{Name: "optimizer", Type: Discrete, Options: []string{"sgd", "adam", "adamw", "lamb"}, Weight: 0.5, Mutable: true},
			{Name: "scheduler", Type: Discrete, Options: []string{"cosine", "linear", "constant"}, Weight: 0.3, Mutable: true},
		},
	}
}
