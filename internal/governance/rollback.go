package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

// rollbackRelease reverses a published release per spec §4.D "Rollback
// operation": the release directory is quarantined (never deleted), the
// pre-publish snapshot is restored over catalog.json/current, and the
// catalog drops the rolled-back entry.
func rollbackRelease(releasesRoot, relID, approver string, approvers []string, now time.Time) (domain.Catalog, error) {
	if len(approvers) > 0 && !contains(approvers, approver) {
		return domain.Catalog{}, fmt.Errorf("user %q is not an approved rollback approver", approver)
	}

	releaseDir := filepath.Join(releasesRoot, relID)
	manifestPath := filepath.Join(releaseDir, "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read manifest for %s: %w", relID, err)
	}
	var manifest domain.ReleaseManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return domain.Catalog{}, fmt.Errorf("parse manifest for %s: %w", relID, err)
	}
	if manifest.SnapBefore == "" {
		return domain.Catalog{}, fmt.Errorf("release %s has no snap_before, cannot roll back", relID)
	}

	quarantineDir := filepath.Join(releasesRoot, "quarantine", fmt.Sprintf("rollback_%s_%d", relID, now.Unix()))
	if err := os.MkdirAll(filepath.Dir(quarantineDir), 0o755); err != nil {
		return domain.Catalog{}, err
	}
	if err := os.Rename(releaseDir, quarantineDir); err != nil {
		return domain.Catalog{}, fmt.Errorf("quarantine release dir: %w", err)
	}

	if err := restoreSnapshot(manifest.SnapBefore, releasesRoot); err != nil {
		return domain.Catalog{}, fmt.Errorf("restore snapshot %s: %w", manifest.SnapBefore, err)
	}

	cat, err := loadCatalog(releasesRoot)
	if err != nil {
		return domain.Catalog{}, err
	}
	var kept []domain.CatalogEntry
	for _, e := range cat.Releases {
		if e.ID != relID {
			kept = append(kept, e)
		}
	}
	cat.Releases = kept
	if len(kept) > 0 {
		tail := kept[len(kept)-1]
		cat.Current = tail.ID
		cat.Versions["latest"] = tail.Version
	} else {
		cat.Current = ""
	}
	if err := saveCatalog(releasesRoot, cat); err != nil {
		return domain.Catalog{}, err
	}
	return cat, nil
}
