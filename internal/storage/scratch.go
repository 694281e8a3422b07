package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Scratch holds transient per-request working copies.
type Scratch struct {
	dir string
}

func NewScratch(dir string) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Write stores data under a unique name. The returned release func removes
// the file; it is safe to call more than once.
func (s *Scratch) Write(data []byte, ext string) (string, func(), error) {
	path := filepath.Join(s.dir, "detect-"+uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", func() {}, fmt.Errorf("write scratch file: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() { _ = os.Remove(path) })
	}
	return path, release, nil
}

// Sweep removes every leftover scratch file, e.g. after a crash.
func (s *Scratch) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("sweep scratch: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
