package mutation

import (
	"math/rand"
	"testing"
)

func TestSelectSurrogate_DegeneratesToMeanBelow5Samples(t *testing.T) {
	samples := []Sample{
		{Features: []float64{1}, Target: 1},
		{Features: []float64{2}, Target: 2},
	}
	s := SelectSurrogate(samples)
	if _, ok := s.(*MeanSurrogate); !ok {
		t.Fatalf("SelectSurrogate with <5 samples = %T, want *MeanSurrogate", s)
	}
}

func TestSelectSurrogate_UsesRidgeAt5OrMoreSamples(t *testing.T) {
	samples := make([]Sample, 5)
	for i := range samples {
		samples[i] = Sample{Features: []float64{float64(i)}, Target: float64(i)}
	}
	s := SelectSurrogate(samples)
	if _, ok := s.(*RidgeSurrogate); !ok {
		t.Fatalf("SelectSurrogate with 5 samples = %T, want *RidgeSurrogate", s)
	}
}

func TestMeanSurrogate_PredictsTrainingMean(t *testing.T) {
	m := &MeanSurrogate{}
	m.Fit([]Sample{{Target: 2}, {Target: 4}, {Target: 6}})
	rng := rand.New(rand.NewSource(1))
	pred := m.Predict(rng, nil)
	if pred.Point != 4 {
		t.Errorf("MeanSurrogate point = %v, want 4", pred.Point)
	}
	if pred.CILow > pred.Point || pred.CIHigh < pred.Point {
		t.Errorf("CI does not bracket point estimate: %+v", pred)
	}
}

func TestRidgeSurrogate_FitsLinearRelationship(t *testing.T) {
	r := &RidgeSurrogate{Lambda: 0.01}
	var samples []Sample
	for i := 0; i < 20; i++ {
		x := float64(i)
		samples = append(samples, Sample{Features: []float64{x}, Target: 2*x + 1})
	}
	if err := r.Fit(samples); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	pred := r.Predict(rng, []float64{10})
	if pred.Point < 19 || pred.Point > 23 {
		t.Errorf("RidgeSurrogate prediction at x=10 = %v, want close to 21", pred.Point)
	}
	report := r.Report()
	if report.R2 < 0.9 {
		t.Errorf("R2 = %v, want a near-perfect fit on a linear relationship", report.R2)
	}
}

func TestRidgeSurrogate_EmptySamplesDoesNotPanic(t *testing.T) {
	r := &RidgeSurrogate{Lambda: 1}
	if err := r.Fit(nil); err != nil {
		t.Fatalf("Fit(nil): %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	_ = r.Predict(rng, []float64{1, 2})
}

func TestHistory_FIFOCap(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(Sample{Target: float64(i)})
	}
	if len(h.Samples) != 3 {
		t.Fatalf("len(h.Samples) = %d, want 3", len(h.Samples))
	}
	if h.Samples[0].Target != 2 {
		t.Errorf("oldest retained sample = %v, want 2 (FIFO evicted 0,1)", h.Samples[0].Target)
	}
}
