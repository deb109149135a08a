package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pricememory/internal/core"
)

// SaveFile writes a backup named after now into dir and returns its path.
// The file is written under a temporary name and renamed into place so a
// failed run never leaves a partial backup behind.
func SaveFile(dir string, f Format, purchases []core.Purchase, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp, purchases, now.Location()); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	path := filepath.Join(dir, f.Filename(now))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move backup into place: %w", err)
	}
	return path, nil
}
