// Package atomicio writes files by creating a temporary file in the target
// directory and renaming it over the destination, so readers never observe a
// truncated file and a crash mid-write leaves the previous content in place.
package atomicio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// WriteFile atomically replaces path with data, creating the parent
// directory if needed.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	pf, err := renameio.TempFile(dir, path)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	// No-op after a successful replace; removes the temp file otherwise.
	defer pf.Cleanup()

	if _, err := pf.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pf.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
