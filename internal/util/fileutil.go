package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWrite writes r to dst through a temp file in the same directory and
// renames it into place, so readers see either the old or the new content.
func AtomicWrite(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + ".fieldsync.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to flush temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// IsTempFile reports whether path is a leftover AtomicWrite temp file.
func IsTempFile(path string) bool {
	return filepath.Ext(path) == ".tmp" && filepath.Ext(path[:len(path)-len(".tmp")]) == ".fieldsync"
}
