package dockerengine

import (
	"context"
	"sync"

	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
)

// supervised tracks one instance's running container plus the background
// work attached to it (log streaming cancellation, cached stats). Exactly
// one supervised entry may exist per instance ID at a time - Supervisor
// enforces that invariant from §5's ordering guarantees.
type supervised struct {
	containerID string
	cancelLogs  context.CancelFunc
	lastStats   *eventbus.StatsPayload
}

// Supervisor is the in-memory registry of containers this node agent is
// currently running, plus the per-instance lock that serializes
// lifecycle requests (start/stop/install/kill/restart) for the same id.
type Supervisor struct {
	mu         sync.Mutex
	containers map[string]*supervised
	locks      map[string]*sync.Mutex
}

func NewSupervisor() *Supervisor {
	return &Supervisor{
		containers: make(map[string]*supervised),
		locks:      make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-instance mutex for id, creating it on first
// use. the registry's own mutex only protects the locks map itself, not
// the per-instance critical sections guarded by the returned lock.
func (s *Supervisor) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// WithLock runs fn while holding the per-instance lock for id, so a
// second concurrent lifecycle request for the same instance blocks until
// the first one's state transition has fully published.
func (s *Supervisor) WithLock(id string, fn func() error) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *Supervisor) register(id string, containerID string, cancelLogs context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[id] = &supervised{containerID: containerID, cancelLogs: cancelLogs}
}

func (s *Supervisor) evict(id string) {
	s.mu.Lock()
	entry, ok := s.containers[id]
	delete(s.containers, id)
	s.mu.Unlock()

	if ok && entry.cancelLogs != nil {
		entry.cancelLogs()
	}
}

func (s *Supervisor) lookup(id string) (*supervised, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.containers[id]
	return entry, ok
}

// Lookup returns the container ID currently supervised for id, if any.
// exported for the lifecycle manager's stop/kill/send-command paths.
func (s *Supervisor) Lookup(id string) (string, bool) {
	entry, ok := s.lookup(id)
	if !ok {
		return "", false
	}
	return entry.containerID, true
}

// Register records id's running container and the cancel func for its
// attached log stream. exported for the lifecycle manager's start path.
func (s *Supervisor) Register(id, containerID string, cancelLogs context.CancelFunc) {
	s.register(id, containerID, cancelLogs)
}

// Evict removes id from the registry and cancels its attached log
// stream, if any. exported for the lifecycle manager's stop/kill paths.
func (s *Supervisor) Evict(id string) {
	s.evict(id)
}

// IDs returns every currently-supervised instance ID. exported for the
// stats sampler and reconciler.
func (s *Supervisor) IDs() []string {
	return s.ids()
}

// ids returns every currently-supervised instance ID, snapshotted under
// the registry lock.
func (s *Supervisor) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.containers))
	for id := range s.containers {
		out = append(out, id)
	}
	return out
}

func (s *Supervisor) cacheStats(id string, stats eventbus.StatsPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.containers[id]; ok {
		entry.lastStats = &stats
	}
}

// LastStats returns the most recently cached stats sample for id, if any.
func (s *Supervisor) LastStats(id string) (eventbus.StatsPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.containers[id]
	if !ok || entry.lastStats == nil {
		return eventbus.StatsPayload{}, false
	}
	return *entry.lastStats, true
}

// IsSupervised reports whether id currently has a registered container.
func (s *Supervisor) IsSupervised(id string) bool {
	_, ok := s.lookup(id)
	return ok
}
