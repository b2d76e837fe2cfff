package player

import "sync"

// Repository defines the concurrency-safe contract for the live session
// registry. Sessions themselves guard their own state; the repository only
// guards membership.
type Repository interface {
	// PutSession registers a session under its ID. An existing session
	// with the same ID is replaced and returned so the caller can close
	// it; loading a new manifest for a video replaces the old session.
	PutSession(s *Session) (replaced *Session)

	// GetSession returns the session with the given ID.
	GetSession(id SessionID) (*Session, bool)

	// RemoveSession removes and returns the session with the given ID.
	// ok is false if no such session exists.
	RemoveSession(id SessionID) (s *Session, ok bool)

	// ActiveSessionCount returns the number of registered sessions.
	// Used for metrics.
	ActiveSessionCount() int
}

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository. It uses a Store for persistence; by default that is an
// InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given
// Store. Useful for testing or for plugging in a different backend.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// PutSession implements Repository.PutSession.
func (r *InMemoryRepository) PutSession(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced, _ := r.store.GetSession(s.ID())
	r.store.SetSession(s)
	return replaced
}

// GetSession implements Repository.GetSession.
func (r *InMemoryRepository) GetSession(id SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.GetSession(id)
}

// RemoveSession implements Repository.RemoveSession.
func (r *InMemoryRepository) RemoveSession(id SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.store.GetSession(id)
	if !ok {
		return nil, false
	}
	r.store.DeleteSession(id)
	return s, true
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.ListSessionIDs())
}
