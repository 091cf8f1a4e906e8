package mutation

import (
	"testing"

	"github.com/peninaocubo/core/internal/genespace"
)

func TestHybridDistance_IdenticalGenotypesIsZero(t *testing.T) {
	space := genespace.Default()
	g := &Genotype{Values: map[string]float64{}}
	for _, gene := range space.Genes {
		g.Values[gene.Name] = 0.5
	}
	if d := HybridDistance(space, g, g.Clone()); d != 0 {
		t.Errorf("distance between identical genotypes = %v, want 0", d)
	}
}

func TestHybridDistance_ClampedTo1(t *testing.T) {
	space := genespace.Default()
	a := &Genotype{Values: map[string]float64{}}
	b := &Genotype{Values: map[string]float64{}}
	for _, gene := range space.Genes {
		a.Values[gene.Name] = 0
		b.Values[gene.Name] = 1
	}
	d := HybridDistance(space, a, b)
	if d > 1 || d < 0 {
		t.Errorf("distance = %v, want in [0,1]", d)
	}
}

func TestHybridDistance_FlagHammingOnlyOnRoundedMismatch(t *testing.T) {
	space := genespace.Space{Genes: []genespace.Gene{
		{Name: "f", Type: genespace.Flag, Weight: 1.0, Mutable: true},
	}}
	a := &Genotype{Values: map[string]float64{"f": 0.4}}
	b := &Genotype{Values: map[string]float64{"f": 0.45}}
	if d := HybridDistance(space, a, b); d != 0 {
		t.Errorf("same rounded flag should be distance 0, got %v", d)
	}

	c := &Genotype{Values: map[string]float64{"f": 0.9}}
	if d := HybridDistance(space, a, c); d != 1 {
		t.Errorf("differing rounded flag should contribute full weight, got %v", d)
	}
}
