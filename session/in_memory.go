package session

import (
	"context"
	"sync"

	"github.com/convomesh/convomesh/core"
)

// InMemoryStore is a volatile SessionStore and MessageStore implementation
// backed by process-local maps. It is safe for concurrent access and best
// suited for tests or ephemeral demo servers. Every session handed out is a
// clone so callers cannot mutate internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	events   map[string][]core.Event
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		events:   make(map[string][]core.Event),
	}
}

// Create allocates and stores a fresh session, overwriting any existing one.
func (s *InMemoryStore) Create(_ context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(id)
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Get returns a clone of an existing session or core.ErrSessionNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Save stores a clone of the provided session snapshot, last write wins.
func (s *InMemoryStore) Save(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// ApplyDataDelta merges collected-field values into the stored session.
func (s *InMemoryStore) ApplyDataDelta(_ context.Context, id string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.MergeData(delta)
	return nil
}

// UpdateRouteStep updates the stored route/step position.
func (s *InMemoryStore) UpdateRouteStep(_ context.Context, id string, route *core.RouteRef, step *core.StepRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.CurrentRoute = route
	sess.CurrentStep = step
	return nil
}

// IncrementMessageCount bumps the stored message counter.
func (s *InMemoryStore) IncrementMessageCount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.MessageCount++
	return nil
}

// Delete removes the session and its history.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.events, id)
	return nil
}

// Append adds an event to the session's history.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, event core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[sessionID] = append(s.events[sessionID], event)
	return nil
}

// List returns the session's history in append order.
func (s *InMemoryStore) List(_ context.Context, sessionID string) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[sessionID]
	out := make([]core.Event, len(events))
	copy(out, events)
	return out, nil
}

// DeleteBySession removes all history for the session.
func (s *InMemoryStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, sessionID)
	return nil
}
