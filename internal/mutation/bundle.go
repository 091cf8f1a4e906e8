package mutation

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/peninaocubo/core/internal/domain"
)

// zipEpoch is the fixed archive-entry modification time. Real timestamps
// would break the determinism property (§4.B "Determinism"): identical
// inputs must produce a byte-identical archive.
var zipEpoch = time.Unix(0, 0).UTC()

// PackageBundle writes a manifest plus one patch file per candidate into a
// staging directory, zips them into a single archive at destPath, then
// removes the staging directory (§4.B step 12).
func PackageBundle(stagingDir, destPath string, bundle domain.MutationBundle) error {
	if err := os.MkdirAll(filepath.Join(stagingDir, "patches"), 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	manifest, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(stagingDir, "manifest.json")
	if err := os.WriteFile(manifestPath, manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	patchFiles := make(map[string][]byte, len(bundle.TopK))
	for _, cand := range bundle.TopK {
		data, err := json.MarshalIndent(cand, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal candidate %s: %w", cand.CandID, err)
		}
		name := fmt.Sprintf("%s_patch.json", cand.CandID)
		patchFiles[name] = data
		if err := os.WriteFile(filepath.Join(stagingDir, "patches", name), data, 0o644); err != nil {
			return fmt.Errorf("write patch %s: %w", name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	archive, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer archive.Close()

	zw := zip.NewWriter(archive)
	if err := writeZipEntry(zw, "manifest.json", manifest); err != nil {
		return err
	}

	names := make([]string, 0, len(patchFiles))
	for name := range patchFiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeZipEntry(zw, filepath.Join("patches", name), patchFiles[name]); err != nil {
			return err
		}
	}

	return zw.Close()
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: filepath.ToSlash(name), Method: zip.Deflate}
	hdr.Modified = zipEpoch
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}
