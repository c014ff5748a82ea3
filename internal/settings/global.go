package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Global is the shared configuration every host sees under "global".
// Implementations must be safe for concurrent use and return copies.
type Global interface {
	// Get returns a copy of the current global configuration.
	Get() map[string]any

	// Merge folds fragment into the global configuration using Merge rules.
	Merge(fragment map[string]any) error
}

// MemoryGlobal keeps the global configuration in memory only.
type MemoryGlobal struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMemoryGlobal creates an in-memory global store seeded with initial.
func NewMemoryGlobal(initial map[string]any) *MemoryGlobal {
	return &MemoryGlobal{data: Clone(initial)}
}

// Get returns a copy of the configuration.
func (g *MemoryGlobal) Get() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Clone(g.data)
}

// Merge folds fragment into the configuration. It never fails.
func (g *MemoryGlobal) Merge(fragment map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data = Merge(g.data, fragment)
	return nil
}

// FileGlobal persists the global configuration as a YAML file so operator
// preferences survive restarts. Every successful Merge rewrites the file
// atomically through a temporary file and rename.
type FileGlobal struct {
	mu   sync.RWMutex
	path string
	data map[string]any
}

// OpenFileGlobal loads the configuration at path. A missing file starts an
// empty configuration that is created on the first Merge.
func OpenFileGlobal(path string) (*FileGlobal, error) {
	g := &FileGlobal{path: path, data: map[string]any{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read global settings: %w", err)
	}

	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode global settings %s: %w", path, err)
	}
	g.data = Merge(g.data, data)
	return g, nil
}

// Get returns a copy of the configuration.
func (g *FileGlobal) Get() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Clone(g.data)
}

// Merge folds fragment into the configuration and writes it to disk. On a
// write error the in-memory configuration is left unchanged.
func (g *FileGlobal) Merge(fragment map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := Merge(Clone(g.data), fragment)
	raw, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode global settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".global-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write global settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close global settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), g.path); err != nil {
		return fmt.Errorf("replace global settings: %w", err)
	}

	g.data = next
	return nil
}
