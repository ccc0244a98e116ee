package raster

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic runs write against a temporary sibling of path and renames it
// into place only when write succeeds. The canonical path never holds a
// partial file.
func WriteAtomic(path string, write func(tmpPath string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	ext := filepath.Ext(path)
	tmpPath := filepath.Join(dir, "."+filepath.Base(path[:len(path)-len(ext)])+".tmp"+ext)
	_ = os.Remove(tmpPath)

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", tmpPath, err)
	}
	return nil
}
