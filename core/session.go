package core

import (
	"encoding/json"
	"time"
)

// Status describes the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a session with an ongoing conversation.
	StatusActive Status = "active"
	// StatusCompleted marks a session whose conversation finished normally.
	StatusCompleted Status = "completed"
	// StatusAbandoned marks a session the user walked away from.
	StatusAbandoned Status = "abandoned"
)

// TransitionReason tags why a pending transition was recorded.
type TransitionReason string

const (
	// ReasonRouteComplete marks a transition scheduled by a route's
	// on-complete target after its wrap-up turn.
	ReasonRouteComplete TransitionReason = "route_complete"
	// ReasonToolRequest marks a transition requested by a tool during the
	// tool-call loop.
	ReasonToolRequest TransitionReason = "tool_request"
)

// RouteRef identifies the route a session is currently following.
type RouteRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StepRef identifies the step a session is currently on. Only meaningful
// while CurrentRoute is set.
type StepRef struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// PendingTransition is a deferred route switch recorded when a route
// completes (or a tool requests a handoff) and applied at the start of the
// next turn's routing phase. Once set it must be consumed, applied or
// explicitly cleared, before the same route can be entered again.
type PendingTransition struct {
	TargetRouteID string           `json:"target_route_id"`
	Condition     string           `json:"condition,omitempty"` // Rendered natural-language rationale
	Reason        TransitionReason `json:"reason"`
}

// Session is the serializable record carried between turns. It accumulates
// collected field values, tracks the current route/step position and any
// pending transition. The orchestration core owns it exclusively during a
// turn; persisted copies are the responsibility of the external store.
type Session struct {
	ID                string             `json:"id"`
	UserID            string             `json:"user_id,omitempty"`
	Status            Status             `json:"status"`
	CurrentRoute      *RouteRef          `json:"current_route,omitempty"`
	CurrentStep       *StepRef           `json:"current_step,omitempty"`
	Data              map[string]any     `json:"collected_data"`
	PendingTransition *PendingTransition `json:"pending_transition,omitempty"`
	MessageCount      int                `json:"message_count"`
	Created           time.Time          `json:"created"`
	Updated           time.Time          `json:"updated"`
}

// NewSession creates a new active session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:      id,
		Status:  StatusActive,
		Data:    map[string]any{},
		Created: now,
		Updated: now,
	}
}

// GetData returns the value and existence flag for a collected field.
func (s *Session) GetData(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// SetData sets a collected field value updating the Updated timestamp.
func (s *Session) SetData(key string, value any) {
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	s.Data[key] = value
	s.Updated = time.Now().UTC()
}

// MergeData merges the provided field values into the collected data,
// last write wins per field.
func (s *Session) MergeData(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	for k, v := range delta {
		s.Data[k] = v
	}
	s.Updated = time.Now().UTC()
}

// HasAll reports whether every named field is present in the collected data.
func (s *Session) HasAll(fields []string) bool {
	for _, f := range fields {
		if _, ok := s.Data[f]; !ok {
			return false
		}
	}
	return true
}

// EnterRoute stamps the current route reference and clears the step position.
func (s *Session) EnterRoute(ref RouteRef) {
	s.CurrentRoute = &ref
	s.CurrentStep = nil
	s.Updated = time.Now().UTC()
}

// EnterStep stamps the current step reference. This is the only state
// mutation the step graph performs; data collection happens in the pipeline.
func (s *Session) EnterStep(ref StepRef) {
	s.CurrentStep = &ref
	s.Updated = time.Now().UTC()
}

// LeaveRoute clears the route/step position, typically after completion.
func (s *Session) LeaveRoute() {
	s.CurrentRoute = nil
	s.CurrentStep = nil
	s.Updated = time.Now().UTC()
}

// SetPendingTransition records a deferred route switch.
func (s *Session) SetPendingTransition(t PendingTransition) {
	s.PendingTransition = &t
	s.Updated = time.Now().UTC()
}

// ConsumePendingTransition returns and clears the pending transition, if any.
func (s *Session) ConsumePendingTransition() *PendingTransition {
	t := s.PendingTransition
	if t != nil {
		s.PendingTransition = nil
		s.Updated = time.Now().UTC()
	}
	return t
}

// Clone returns a deep copy of the session safe for independent mutation.
// The pipeline clones before mutating so a caller's original reference
// remains a valid before-snapshot.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		clone.Data[k] = v
	}
	if s.CurrentRoute != nil {
		r := *s.CurrentRoute
		clone.CurrentRoute = &r
	}
	if s.CurrentStep != nil {
		st := *s.CurrentStep
		clone.CurrentStep = &st
	}
	if s.PendingTransition != nil {
		pt := *s.PendingTransition
		clone.PendingTransition = &pt
	}
	return &clone
}

// Snapshot serializes the session to its persistence wire format. Route and
// step definitions are configuration, loaded fresh each run; only this state
// must survive a restart.
func (s *Session) Snapshot() ([]byte, error) {
	return json.Marshal(s)
}

// SessionFromSnapshot restores a session from its persisted form.
func SessionFromSnapshot(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Data == nil {
		s.Data = map[string]any{}
	}
	return &s, nil
}
