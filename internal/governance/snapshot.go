package governance

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// snapshot tars+gzips the current catalog.json and the "current" pointer
// file into snapshots/snap_<release_id>.tar.gz, per spec §4.D "Snapshot":
// taken before any filesystem swap so a rollback can restore exactly this
// state.
func snapshot(releasesRoot, relID string) (string, error) {
	snapDir := filepath.Join(releasesRoot, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return "", err
	}
	snapPath := filepath.Join(snapDir, fmt.Sprintf("snap_%s.tar.gz", relID))

	f, err := os.Create(snapPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, name := range []string{"catalog.json", "current"} {
		path := filepath.Join(releasesRoot, name)
		if err := addToTar(tw, path, name); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("snapshot %s: %w", name, err)
		}
	}
	return snapPath, nil
}

func addToTar(tw *tar.Writer, path, name string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target, Mode: 0o644}
		return tw.WriteHeader(hdr)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(content)
	return err
}

// restoreSnapshot extracts a snapshot tar.gz back into releasesRoot,
// overwriting catalog.json and the current pointer (§4.D "Rollback
// operation" step 4).
func restoreSnapshot(snapPath, releasesRoot string) error {
	f, err := os.Open(snapPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		dest := filepath.Join(releasesRoot, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeSymlink:
			os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				return err
			}
		default:
			content, err := io.ReadAll(tr)
			if err != nil {
				return err
			}
			if err := os.WriteFile(dest, content, 0o644); err != nil {
				return err
			}
		}
	}
}
