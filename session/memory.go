package session

import (
	"sync"
	"time"

	"github.com/hupe1980/sessionmesh/core"
)

// InMemoryStore is a volatile canonical store keeping session payloads in a
// process local map. It is safe for concurrent access and best suited for
// tests, ephemeral servers, or as the backing store below a cache.
type InMemoryStore struct {
	mu       sync.RWMutex
	name     string
	sessions map[string]record
	now      func() time.Time
}

type record struct {
	data    string
	updated time.Time
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// Clock returns the current time (defaults to time.Now). Used by Clean.
	Clock func() time.Time
}

var _ core.Handler = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{Clock: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{sessions: make(map[string]record), now: opts.Clock}
}

// Name returns the session name passed to the last Create call.
func (s *InMemoryStore) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Create records the session name; the map needs no preparation.
func (s *InMemoryStore) Create(_, name string, _ core.CreateNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return true
}

// Read returns the stored payload or "".
func (s *InMemoryStore) Read(id string, _ core.ReadNext) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].data
}

// Write stores a copy of the payload and refreshes its timestamp.
func (s *InMemoryStore) Write(id, data string, _ core.WriteNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = record{data: data, updated: s.now()}
	return true
}

// Delete removes a session; removing an unknown id succeeds.
func (s *InMemoryStore) Delete(id string, _ core.DeleteNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return true
}

// Clean removes sessions last written more than maxLifetime seconds ago.
func (s *InMemoryStore) Clean(maxLifetime int, _ core.CleanNext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-time.Duration(maxLifetime) * time.Second)
	for id, rec := range s.sessions {
		if rec.updated.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
	return true
}
