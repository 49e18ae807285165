// Package workspace manages the scratch directory shared by a batch.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Reset removes dir and everything in it, then recreates it empty.
func Reset(dir string) error {
	if dir == "" {
		return errors.New("workspace directory is required")
	}
	clean := filepath.Clean(dir)
	if clean == "/" || clean == "." {
		return fmt.Errorf("refusing to reset %q", dir)
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}
