// Package checkpoint persists the resume position of the pipeline as a single
// integer in a plain-text file.
//
// The value is the number of checklist rows fully processed, i.e. the index
// of the next row to process. Writes go to a synced temp file that is then
// renamed over the old one, so a crash leaves either the old or the new
// value, never a torn file.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// syncFile flushes the temp file before it replaces the checkpoint.
var syncFile = (*os.File).Sync

// Store reads and writes the checkpoint file.
type Store struct {
	path string
}

// New returns a Store bound to path. The file is created on first Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored position. A missing or empty file is position 0.
func (s *Store) Load() (int, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checkpoint: read: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: parse %q: %w", text, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("checkpoint: negative position %d", n)
	}
	return n, nil
}

// Save atomically replaces the stored position with n.
func (s *Store) Save(n int) error {
	if n < 0 {
		return fmt.Errorf("checkpoint: negative position %d", n)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create tmp: %w", err)
	}
	if _, err := tmp.WriteString(strconv.Itoa(n) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: write tmp: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: sync tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: close tmp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}
