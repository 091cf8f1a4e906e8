package governance

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/peninaocubo/core/internal/domain"
)

// publishRelease performs the atomic publish + catalog update from spec
// §4.D: move staging to a .tmp sibling, rename into place, swap the
// "current" symlink, then append the catalog entry and bump versions.
// Any failure up to the rename rolls back by removing the .tmp directory;
// the releases/<release_id> directory itself is never partially visible.
func publishRelease(releasesRoot, relID string, stagingDir string, manifest domain.ReleaseManifest, planID string, bump string) (domain.Catalog, error) {
	tmp := filepath.Join(releasesRoot, relID+".tmp")
	final := filepath.Join(releasesRoot, relID)

	if err := os.Rename(stagingDir, tmp); err != nil {
		return domain.Catalog{}, fmt.Errorf("stage to tmp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.RemoveAll(tmp)
		return domain.Catalog{}, fmt.Errorf("publish release dir: %w", err)
	}

	currentLink := filepath.Join(releasesRoot, "current")
	if err := swapSymlink(currentLink, final); err != nil {
		return domain.Catalog{}, fmt.Errorf("swap current pointer: %w", err)
	}

	cat, err := loadCatalog(releasesRoot)
	if err != nil {
		return domain.Catalog{}, err
	}
	version := nextVersion(cat.Versions["latest"], bump)
	cat.Releases = append(cat.Releases, domain.CatalogEntry{
		ID: relID, Version: version, Plan: planID,
		CreatedAt: manifest.CreatedAt, CreatedBy: manifest.CreatedBy, StateHash: manifest.StateHash,
	})
	cat.Current = relID
	cat.Versions["latest"] = version
	cat.Versions[planID] = version

	if err := saveCatalog(releasesRoot, cat); err != nil {
		return domain.Catalog{}, fmt.Errorf("save catalog: %w", err)
	}
	return cat, nil
}

// swapSymlink points link at target, replacing any existing symlink or
// plain file atomically via rename-over.
func swapSymlink(link, target string) error {
	tmp := link + ".new"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	return os.Rename(tmp, link)
}
