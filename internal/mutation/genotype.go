package mutation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/peninaocubo/core/internal/domain"
	"github.com/peninaocubo/core/internal/genespace"
)

// Genotype is a mapping gene_name -> normalized value in [0,1], plus the
// schema version it was built against and lineage hashes.
type Genotype struct {
	SchemaVersion int                `json:"schema_version"`
	Values        map[string]float64 `json:"values"`
	HashBase      string             `json:"hash_base"`
	ParentHashes  []string           `json:"parent_hashes,omitempty"`
}

// Clone returns a deep copy so operators never alias a parent's map.
func (g *Genotype) Clone() *Genotype {
	values := make(map[string]float64, len(g.Values))
	for k, v := range g.Values {
		values[k] = v
	}
	return &Genotype{
		SchemaVersion: g.SchemaVersion,
		Values:        values,
		HashBase:      g.HashBase,
		ParentHashes:  append([]string(nil), g.ParentHashes...),
	}
}

// deterministicUnit derives a value in [0,1) from a seed string via SHA-256,
// used anywhere the source calls for "deterministic perturbation" rather
// than true randomness (DNA-Fabric initialization, §4.B step 2).
func deterministicUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v) / float64(^uint64(0))
}

// cycleSeed derives the deterministic 64-bit seed H(state||plan||acq||seed)
// that both the genotype construction and the EDNAG PRNG are rooted in, per
// §8 P2: "uuids derived from fresh randomness ... MUST therefore also be
// seeded by H(state||plan||acq||seed)".
func cycleSeed(state *domain.State, plan *domain.Plan, acq *domain.AcquisitionReport, seed int64) (hashHex string, rngSeed int64, err error) {
	payload := struct {
		State *domain.State            `json:"state"`
		Plan  *domain.Plan              `json:"plan"`
		Acq   *domain.AcquisitionReport `json:"acq"`
		Seed  int64                     `json:"seed"`
	}{state, plan, acq, seed}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", 0, fmt.Errorf("canonicalize cycle seed input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	hashHex = hex.EncodeToString(sum[:])
	rngSeed = int64(binary.BigEndian.Uint64(sum[:8]))
	if rngSeed < 0 {
		rngSeed = -rngSeed
	}
	return hashHex, rngSeed, nil
}

// NewBaseGenotype deterministically builds the base genotype (DNA-Fabric,
// §4.B step 2) from H(state||plan||acq). Float genes start at 0.5 with a
// small deterministic perturbation derived from acquisition-text hints when
// present; anchor flag genes are seeded from acquisition anchor questions,
// other flags and discrete genes are seeded uniformly from the same hash
// stream (never from a non-deterministic source).
func NewBaseGenotype(space genespace.Space, hashBase string, acq *domain.AcquisitionReport) *Genotype {
	values := make(map[string]float64, len(space.Genes))

	hasHints := acq != nil && (acq.SynthesisURI != "" || len(acq.AnchorQuestions) > 0)
	numAnchors := 0
	if acq != nil {
		numAnchors = len(acq.AnchorQuestions)
	}

	for _, g := range space.Genes {
		seedStr := hashBase + "|" + g.Name
		u := deterministicUnit(seedStr)

		switch g.Type {
		case genespace.Float, genespace.Int:
			v := 0.5
			if hasHints {
				// Small deterministic perturbation, +/-0.05, keyed off the
				// acquisition synthesis text hint.
				perturb := (u - 0.5) * 0.1
				v += perturb
			}
			values[g.Name] = math.Min(1, math.Max(0, v))
		case genespace.Flag:
			if g.Anchor && numAnchors > 0 {
				// Anchor flags are seeded true/false deterministically from
				// whether an anchor question hash lands in the gene's
				// designated bucket.
				anchorSeed := deterministicUnit(hashBase + "|anchor|" + g.Name)
				bucket := anchorSeed < (float64(numAnchors) / 10.0)
				if bucket {
					values[g.Name] = 1.0
				} else {
					values[g.Name] = 0.0
				}
			} else {
				values[g.Name] = math.Round(u)
			}
		case genespace.Discrete:
			values[g.Name] = u
		}
	}

	return &Genotype{
		SchemaVersion: space.Version,
		Values:        values,
		HashBase:      hashBase,
		ParentHashes:  nil,
	}
}

// Denormalized returns the concrete parameter map for this genotype.
func Denormalized(space genespace.Space, g *Genotype) map[string]any {
	out := make(map[string]any, len(space.Genes))
	for _, gene := range space.Genes {
		v, ok := g.Values[gene.Name]
		if !ok {
			continue
		}
		out[gene.Name] = genespace.Denormalize(gene, v)
	}
	return out
}
