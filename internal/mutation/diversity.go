package mutation

import (
	"math"

	"github.com/peninaocubo/core/internal/domain"
)

// jaccard returns the Jaccard similarity of two op-sequence sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	inter := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}
	union := len(setA)
	for s := range setB {
		if _, ok := setA[s]; !ok {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// CandidateDiversity implements §4.B step 10's diversity metric.
func CandidateDiversity(a, b domain.Candidate, maxScore float64) float64 {
	opDiv := 1 - jaccard(a.OpSeq, b.OpSeq)
	distDelta := math.Abs(a.DistanceToBase - b.DistanceToBase)
	scoreDelta := 0.0
	if maxScore > 0 {
		scoreDelta = math.Abs(a.Score-b.Score) / maxScore
	}
	return 0.4*opDiv + 0.3*distDelta + 0.3*scoreDelta
}

// DiverseTopK implements §4.B step 10: sort by score desc, greedily accept
// candidates whose minimum diversity to the already-selected set is >= the
// threshold, then fill remaining slots by score if the pass falls short.
func DiverseTopK(candidates []domain.Candidate, k int, minDiversity float64) []domain.Candidate {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	sorted := append([]domain.Candidate(nil), candidates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Score < sorted[j].Score; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	maxScore := sorted[0].Score
	selected := []domain.Candidate{sorted[0]}
	used := map[int]bool{0: true}

	for len(selected) < k {
		bestIdx := -1
		for i, c := range sorted {
			if used[i] {
				continue
			}
			minDiv := math.Inf(1)
			for _, s := range selected {
				d := CandidateDiversity(c, s, maxScore)
				if d < minDiv {
					minDiv = d
				}
			}
			if minDiv >= minDiversity {
				bestIdx = i
				break
			}
		}
		if bestIdx == -1 {
			break
		}
		selected = append(selected, sorted[bestIdx])
		used[bestIdx] = true
	}

	if len(selected) < k {
		for i, c := range sorted {
			if used[i] {
				continue
			}
			selected = append(selected, c)
			used[i] = true
			if len(selected) >= k {
				break
			}
		}
	}

	if len(selected) > k {
		selected = selected[:k]
	}
	return selected
}
