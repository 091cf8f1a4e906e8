package governance

import (
	"os"
	"path/filepath"
)

const freezeFlagName = "freeze.flag"

// freezePath is the file whose existence is the freeze truth (§4.D
// "Freeze operation"), grounded on the teacher's PIDFile
// existence-as-truth pattern (see DESIGN.md).
func freezePath(root string) string {
	return filepath.Join(root, "state", freezeFlagName)
}

// IsFrozen reports whether promotions are currently blocked.
func IsFrozen(root string) bool {
	_, err := os.Stat(freezePath(root))
	return err == nil
}

// Freeze sets the freeze flag, blocking all subsequent promotions.
func Freeze(root string) error {
	path := freezePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte{}, 0o644)
}

// Unfreeze clears the freeze flag.
func Unfreeze(root string) error {
	err := os.Remove(freezePath(root))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
