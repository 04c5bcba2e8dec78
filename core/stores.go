package core

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned by stores when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists session snapshots. Implementations must be safe for
// concurrent use and must never hand out aliases of their internal state;
// returned sessions are clones. The core calls these only at turn-finalize
// time and treats every backing store as interchangeable.
type SessionStore interface {
	// Create allocates and persists a fresh session with the given id.
	Create(ctx context.Context, id string) (*Session, error)

	// Get returns an existing session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Save persists a full session snapshot (last write wins).
	Save(ctx context.Context, session *Session) error

	// ApplyDataDelta merges collected-field values into the stored session.
	ApplyDataDelta(ctx context.Context, id string, delta map[string]any) error

	// UpdateRouteStep updates the stored route/step position.
	UpdateRouteStep(ctx context.Context, id string, route *RouteRef, step *StepRef) error

	// IncrementMessageCount bumps the stored message counter.
	IncrementMessageCount(ctx context.Context, id string) error

	// Delete removes the session and returns ErrSessionNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// MessageStore persists conversation history events keyed by session id.
type MessageStore interface {
	// Append adds an event to the session's history.
	Append(ctx context.Context, sessionID string, event Event) error

	// List returns the session's history in append order.
	List(ctx context.Context, sessionID string) ([]Event, error)

	// DeleteBySession removes all history for the session.
	DeleteBySession(ctx context.Context, sessionID string) error
}
