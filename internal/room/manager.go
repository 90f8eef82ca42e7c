package room

import (
	"context"
	"sync"

	"collabhub/internal/bus"
	"collabhub/internal/snapshot"
)

// Manager owns the registry of live rooms, creating one lazily on
// first access and removing it once the Room itself decides it has
// been idle long enough.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	store  snapshot.Store
	msgBus bus.Bus
	cfg    Config
}

// NewManager constructs an empty room registry.
func NewManager(store snapshot.Store, msgBus bus.Bus, cfg Config) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		store:  store,
		msgBus: msgBus,
		cfg:    cfg,
	}
}

// GetOrCreate returns the named room, constructing and loading it from
// its snapshot exactly once if it doesn't already exist.
func (m *Manager) GetOrCreate(ctx context.Context, name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[name]; ok {
		return r
	}

	r := New(ctx, name, m.store, m.msgBus, m.cfg, m.remove)
	m.rooms[name] = r
	return r
}

// Peek looks up a room without creating one, for read-only status
// queries that shouldn't spin up a room just to report it has no
// participants.
func (m *Manager) Peek(name string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[name]
	return r, ok
}

// remove drops name from the registry. Called by a Room from within
// its own loop goroutine when it evicts itself; takes the manager's
// lock like every other registry mutation.
func (m *Manager) remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
}

// SweepAwareness fans out to every live room's own awareness sweep,
// invoked by the janitor cron job.
func (m *Manager) SweepAwareness() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.SweepAwareness()
	}
}

// StopAll flushes and stops every live room, used on graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
}
