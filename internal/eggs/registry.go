package eggs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

// Registry loads every egg descriptor from disk at startup, indexes them
// by ID, and serializes all mutation through a single RWMutex - reads
// (List/Get) take the read lock, Put/Delete take the write lock, matching
// the "process-wide singleton with exclusive mutators" shared-resource
// model.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	eggs  map[string]*Egg
}

// Open ensures dir exists, loads every *.json descriptor in it, and
// indexes them by ID. If no descriptor was loaded (a fresh install, or a
// directory whose every descriptor failed to read or parse), the registry
// is seeded with the built-in default egg set so the daemon
// is immediately useful without external configuration.
func Open(dir string, logger *slog.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create eggs directory %q: %w", dir, err)
	}

	registry := &Registry{
		dir:    dir,
		logger: logger,
		eggs:   make(map[string]*Egg),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read eggs directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read egg descriptor, skipping", "path", path, "error", err)
			continue
		}
		var egg Egg
		if err := json.Unmarshal(raw, &egg); err != nil {
			logger.Warn("failed to parse egg descriptor, skipping", "path", path, "error", err)
			continue
		}
		registry.eggs[egg.ID] = &egg
	}

	if len(registry.eggs) == 0 {
		logger.Info("eggs directory empty, seeding built-in default eggs")
		for _, egg := range defaultEggs() {
			eggCopy := egg
			if err := registry.Put(&eggCopy); err != nil {
				return nil, fmt.Errorf("failed to seed default egg %q: %w", egg.ID, err)
			}
		}
	}

	logger.Info("egg registry loaded", "count", len(registry.eggs), "dir", dir)
	return registry, nil
}

// List returns every loaded egg. the returned slice is a fresh copy of
// the pointer set (not deep-copied) so callers must not mutate the
// returned Egg values.
func (r *Registry) List() []*Egg {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Egg, 0, len(r.eggs))
	for _, egg := range r.eggs {
		out = append(out, egg)
	}
	return out
}

// Get looks up an egg by ID.
func (r *Registry) Get(id string) (*Egg, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	egg, ok := r.eggs[id]
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("egg %q not found", id), nil)
	}
	return egg, nil
}

// Put validates and creates-or-updates an egg descriptor, rewriting its
// JSON file atomically (write to a temp file in the same directory, then
// rename - rename is atomic on the same filesystem, so a reader never
// observes a partially-written descriptor).
func (r *Registry) Put(egg *Egg) error {
	if err := validateEgg(egg); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(egg, "", "  ")
	if err != nil {
		return apperr.NewInternal("failed to encode egg descriptor", err)
	}

	finalPath := filepath.Join(r.dir, egg.ID+".json")
	tmpFile, err := os.CreateTemp(r.dir, egg.ID+".json.tmp-*")
	if err != nil {
		return apperr.NewInternal("failed to create temp file for egg descriptor", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to write egg descriptor", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to close egg descriptor temp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to finalize egg descriptor", err)
	}

	r.mu.Lock()
	r.eggs[egg.ID] = egg
	r.mu.Unlock()

	r.logger.Info("egg saved", "id", egg.ID, "name", egg.Name)
	return nil
}

// Delete removes an egg descriptor from the index and from disk. The
// caller (control plane) is responsible for ensuring no Instance Config
// still references it; the registry itself does not enforce that
// invariant (see spec.md §3's lifecycle note).
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.eggs[id]; !ok {
		return apperr.NewNotFound(fmt.Sprintf("egg %q not found", id), nil)
	}

	path := filepath.Join(r.dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.NewInternal("failed to delete egg descriptor", err)
	}

	delete(r.eggs, id)
	r.logger.Info("egg deleted", "id", id)
	return nil
}

// validateEgg enforces the minimum shape §4.2 requires before a
// descriptor is accepted: a stable id, a name, and at least one docker
// image.
func validateEgg(egg *Egg) error {
	if egg.ID == "" {
		return apperr.NewBadRequest("egg id is required", nil)
	}
	if egg.Name == "" {
		return apperr.NewBadRequest("egg name is required", nil)
	}
	if len(egg.DockerImages) == 0 {
		return apperr.NewBadRequest("egg must declare at least one docker image", nil)
	}
	return nil
}
