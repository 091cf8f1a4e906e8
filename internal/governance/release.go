package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

// releaseID derives "rel_<UTC-date>_<12-hex-of-H(plan_id||bundle_hash||date)>"
// deterministically, per spec §4.D "Release assembly".
func releaseID(planID, bundleHash string, at time.Time) string {
	date := at.UTC().Format("2006-01-02")
	h := sha256.Sum256([]byte(planID + "|" + bundleHash + "|" + date))
	return fmt.Sprintf("rel_%s_%s", date, hex.EncodeToString(h[:])[:12])
}

// stageRelease builds the staging directory layout spec §4.D describes and
// returns the populated manifest (unsigned, snap_before still empty) plus
// the staging directory path. Grounded on the teacher's temp-then-rename
// artifact-staging idiom (see DESIGN.md), generalized to a multi-directory
// release bundle.
func stageRelease(releasesRoot, relID string, plan domain.Plan, bundle domain.ExecutionBundle, stateHash string, createdBy string) (string, domain.ReleaseManifest, error) {
	stagingDir := filepath.Join(releasesRoot, "_staging", relID)
	dirs := []string{"policy_pack", "evidence_pack", "knowledge_pack", "runbook", "artifacts"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(stagingDir, d), 0o755); err != nil {
			return "", domain.ReleaseManifest{}, fmt.Errorf("create %s: %w", d, err)
		}
	}

	policyPack, _ := json.MarshalIndent(map[string]any{"plan_id": plan.ID, "constraints": plan.Constraints}, "", "  ")
	if err := os.WriteFile(filepath.Join(stagingDir, "policy_pack", "policy_pack.json"), policyPack, 0o644); err != nil {
		return "", domain.ReleaseManifest{}, err
	}

	evidence := map[string]any{
		"tables": bundle.Tables, "plots": bundle.Plots, "checks": bundle.Checks,
	}
	evidenceJSON, _ := json.MarshalIndent(evidence, "", "  ")
	if err := os.WriteFile(filepath.Join(stagingDir, "evidence_pack", "evidence_pack.json"), evidenceJSON, 0o644); err != nil {
		return "", domain.ReleaseManifest{}, err
	}
	if len(bundle.CanaryTelemetry) > 0 {
		telemetryJSON, _ := json.MarshalIndent(bundle.CanaryTelemetry, "", "  ")
		if err := os.WriteFile(filepath.Join(stagingDir, "evidence_pack", "canary_telemetry.json"), telemetryJSON, 0o644); err != nil {
			return "", domain.ReleaseManifest{}, err
		}
	}

	knowledge := map[string]any{"indices": bundle.Indices, "diffs": bundle.Diffs}
	knowledgeJSON, _ := json.MarshalIndent(knowledge, "", "  ")
	if err := os.WriteFile(filepath.Join(stagingDir, "knowledge_pack", "knowledge_pack.json"), knowledgeJSON, 0o644); err != nil {
		return "", domain.ReleaseManifest{}, err
	}

	runbook := fmt.Sprintf("# Release %s\n\nPlan: %s\nDependencies: %v\nImpact: %v\n", relID, plan.ID, bundle.Dependencies, bundle.Impact)
	if err := os.WriteFile(filepath.Join(stagingDir, "runbook", "runbook.md"), []byte(runbook), 0o644); err != nil {
		return "", domain.ReleaseManifest{}, err
	}

	var artifacts []domain.ArtifactRef
	for _, a := range bundle.Artifacts {
		if a.ExternalURI != "" {
			artifacts = append(artifacts, domain.ArtifactRef{Type: a.Type, URI: a.ExternalURI, SHA256: ""})
			continue
		}
		destName := fmt.Sprintf("%s_%s", a.Type, a.Name)
		dest := filepath.Join(stagingDir, "artifacts", destName)
		sum, err := copyAndHash(a.LocalPath, dest)
		if err != nil {
			return "", domain.ReleaseManifest{}, fmt.Errorf("stage artifact %s: %w", a.Name, err)
		}
		artifacts = append(artifacts, domain.ArtifactRef{Type: a.Type, URI: dest, SHA256: sum})
	}

	manifest := domain.ReleaseManifest{
		ID:        relID,
		StateHash: stateHash,
		FromPlan:  plan.ID,
		Artifacts: artifacts,
		Checks:    bundle.Checks,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
	return stagingDir, manifest, nil
}

// copyAndHash copies src to dst and returns the SHA-256 of dst's content.
func copyAndHash(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeManifest writes the (possibly signed) manifest.json into the
// staging directory, sorted-key JSON for deterministic bytes.
func writeManifest(stagingDir string, manifest domain.ReleaseManifest) error {
	canonical, err := canonicalJSON(manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(stagingDir, "manifest.json"), canonical, 0o644)
}

// canonicalJSON re-marshals v through a map so object keys come out sorted,
// matching the ledger's canonical-encoding approach for deterministic bytes.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte("[")
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := marshalSorted(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}
