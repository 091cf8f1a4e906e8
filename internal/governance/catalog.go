package governance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peninaocubo/core/internal/domain"
)

func loadCatalog(releasesRoot string) (domain.Catalog, error) {
	path := filepath.Join(releasesRoot, "catalog.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Catalog{Versions: map[string]string{}}, nil
		}
		return domain.Catalog{}, err
	}
	var cat domain.Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return domain.Catalog{}, err
	}
	if cat.Versions == nil {
		cat.Versions = map[string]string{}
	}
	return cat, nil
}

func saveCatalog(releasesRoot string, cat domain.Catalog) error {
	raw, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(releasesRoot, "catalog.json"), raw, 0o644)
}

// nextVersion bumps the previous "latest" semver by patch (default),
// minor, or major per spec §4.D "Versioning".
func nextVersion(previous string, bump string) string {
	if previous == "" {
		return "0.1.0"
	}
	major, minor, patch := parseSemver(previous)
	switch bump {
	case "major":
		major, minor, patch = major+1, 0, 0
	case "minor":
		minor, patch = minor+1, 0
	default:
		patch++
	}
	return formatSemver(major, minor, patch)
}

func parseSemver(v string) (major, minor, patch int) {
	var m, n, p int
	if _, err := fmt.Sscanf(v, "%d.%d.%d", &m, &n, &p); err != nil {
		return 0, 1, 0
	}
	return m, n, p
}

func formatSemver(major, minor, patch int) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}
