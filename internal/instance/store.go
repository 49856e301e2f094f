package instance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
)

const (
	minPort = 1024
	maxPort = 65535
)

// Store loads every instance config from disk at startup and serializes
// mutation through a single RWMutex, the same shared-resource shape as
// eggs.Registry.
type Store struct {
	dir    string
	eggs   *eggs.Registry
	logger *slog.Logger

	mu      sync.RWMutex
	configs map[string]*Config
}

// Open ensures dir exists and loads every *.json config in it, hydrating
// each with its current egg snapshot from registry.
func Open(dir string, registry *eggs.Registry, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create configs directory %q: %w", dir, err)
	}

	store := &Store{
		dir:     dir,
		eggs:    registry,
		logger:  logger,
		configs: make(map[string]*Config),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read configs directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read instance config, skipping", "path", path, "error", err)
			continue
		}
		var cfg Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			logger.Warn("failed to parse instance config, skipping", "path", path, "error", err)
			continue
		}
		store.hydrate(&cfg)
		store.configs[cfg.ID] = &cfg
	}

	logger.Info("instance config store loaded", "count", len(store.configs), "dir", dir)
	return store, nil
}

// hydrate attaches the current egg snapshot to cfg, logging but not
// failing when the referenced egg no longer exists - a dangling egg
// reference surfaces as an install/start error, not a load-time failure.
func (s *Store) hydrate(cfg *Config) {
	egg, err := s.eggs.Get(cfg.Egg)
	if err != nil {
		s.logger.Warn("instance references unknown egg", "instance", cfg.ID, "egg", cfg.Egg)
		return
	}
	cfg.eggSnapshot = egg
}

// List returns every loaded config.
func (s *Store) List() []*Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Config, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, cfg)
	}
	return out
}

// Get looks up a config by instance ID.
func (s *Store) Get(id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("instance %q not found", id), nil)
	}
	return cfg, nil
}

// Create validates and persists a brand new instance config. the caller
// is responsible for ensuring id is unique to its instance (eg via
// uuid.New); Create overwrites any existing config of the same id.
func (s *Store) Create(id string, eggID string, port int, plan Plan, location, name, game string, variables map[string]string) (*Config, error) {
	egg, err := s.eggs.Get(eggID)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ID:        id,
		Egg:       eggID,
		Port:      port,
		Plan:      plan,
		Location:  location,
		Name:      name,
		Game:      game,
		Variables: variables,
		Status:    StatusAbsent,
	}

	if err := s.validate(cfg, egg); err != nil {
		return nil, err
	}
	cfg.eggSnapshot = egg

	if err := s.persist(cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.configs[id] = cfg
	s.mu.Unlock()

	s.logger.Info("instance config created", "instance", id, "egg", eggID, "port", port)
	return cfg, nil
}

// Update replaces the mutable fields of an existing config (port, plan,
// variables) and re-validates against its egg. Status is left untouched;
// Status changes only through UpdateStatus.
func (s *Store) Update(id string, port int, plan Plan, variables map[string]string) (*Config, error) {
	s.mu.Lock()
	existing, ok := s.configs[id]
	s.mu.Unlock()
	if !ok {
		return nil, apperr.NewNotFound(fmt.Sprintf("instance %q not found", id), nil)
	}

	egg, err := s.eggs.Get(existing.Egg)
	if err != nil {
		return nil, err
	}

	updated := &Config{
		ID:        id,
		Egg:       existing.Egg,
		Port:      port,
		Plan:      plan,
		Location:  existing.Location,
		Name:      existing.Name,
		Game:      existing.Game,
		Variables: variables,
		Status:    existing.Status,
	}

	if err := s.validate(updated, egg); err != nil {
		return nil, err
	}
	updated.eggSnapshot = egg

	if err := s.persist(updated); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.configs[id] = updated
	s.mu.Unlock()

	s.logger.Info("instance config updated", "instance", id, "port", port)
	return updated, nil
}

// UpdateStatus transitions an instance's persisted Status in place,
// without touching its other fields. the lifecycle manager and the
// reconciler are its callers; they are responsible for only requesting
// transitions valid under the state machine in §4.7.
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	cfg, ok := s.configs[id]
	if ok {
		cfg.Status = status
	}
	s.mu.Unlock()

	if !ok {
		return apperr.NewNotFound(fmt.Sprintf("instance %q not found", id), nil)
	}
	return s.persist(cfg)
}

// Delete removes an instance config from the index and from disk. the
// caller is responsible for tearing down the instance's container and
// files first; Delete itself only touches the config record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return apperr.NewNotFound(fmt.Sprintf("instance %q not found", id), nil)
	}

	path := filepath.Join(s.dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.NewInternal("failed to delete instance config", err)
	}

	delete(s.configs, id)
	s.logger.Info("instance config deleted", "instance", id)
	return nil
}

// validate enforces the port range and defers variable-level checks to
// eggs.ValidateVariables.
func (s *Store) validate(cfg *Config, egg *eggs.Egg) error {
	if cfg.Port < minPort || cfg.Port > maxPort {
		return apperr.NewBadRequest(fmt.Sprintf("port %d out of range [%d,%d]", cfg.Port, minPort, maxPort), nil)
	}
	if cfg.Plan.RAM <= 0 || cfg.Plan.CPU <= 0 || cfg.Plan.Disk <= 0 {
		return apperr.NewBadRequest("plan ram, cpu, and disk must all be positive", nil)
	}
	return eggs.ValidateVariables(egg, cfg.Variables)
}

// persist writes cfg to <dir>/<id>.json via the temp-file-then-rename
// pattern shared with eggs.Registry.Put, so a crash mid-write never
// leaves a reader observing a truncated config.
func (s *Store) persist(cfg *Config) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperr.NewInternal("failed to encode instance config", err)
	}

	finalPath := filepath.Join(s.dir, cfg.ID+".json")
	tmpFile, err := os.CreateTemp(s.dir, cfg.ID+".json.tmp-*")
	if err != nil {
		return apperr.NewInternal("failed to create temp file for instance config", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to write instance config", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to close instance config temp file", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperr.NewInternal("failed to finalize instance config", err)
	}
	return nil
}
