package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/convomesh/convomesh/logging"
)

// TurnContext carries execution state & helpers for one conversation turn.
// It encapsulates the mutable, per-turn execution scope threaded through the
// routing engine, the condition evaluator and the response pipeline:
//
//   - The ambient cancellation Context
//   - Identifiers (SessionID, TurnID)
//   - A working Session clone and the conversation history
//   - Ambient template values (the "context" visible to conditions and tools)
//   - A staged DataDelta of collected-field mutations to commit
//   - Backing stores for persistence at finalize time
//
// Data mutations performed via StageData accumulate in DataDelta until
// CommitData applies them to the session and the store. Cloning produces an
// isolated delta buffer while keeping references to underlying services.
type TurnContext struct {
	Context          context.Context
	SessionID, TurnID string
	Session          *Session
	History          []Event
	Values           map[string]any
	DataDelta        map[string]any
	SessionStore     SessionStore
	MessageStore     MessageStore

	*loggerAdapter
}

// NewTurnContext constructs a TurnContext with an empty staged delta.
func NewTurnContext(
	ctx context.Context,
	sessionID, turnID string,
	sess *Session,
	history []Event,
	values map[string]any,
	sessionStore SessionStore,
	messageStore MessageStore,
	logger logging.Logger,
) *TurnContext {
	if values == nil {
		values = map[string]any{}
	}
	return &TurnContext{
		Context:       ctx,
		SessionID:     sessionID,
		TurnID:        turnID,
		Session:       sess,
		History:       history,
		Values:        values,
		DataDelta:     map[string]any{},
		SessionStore:  sessionStore,
		MessageStore:  messageStore,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (tc *TurnContext) Done() <-chan struct{} { return tc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (tc *TurnContext) Err() error { return tc.Context.Err() }

// GetData returns a staged (delta) value if present, else the session value.
func (tc *TurnContext) GetData(k string) (any, bool) {
	if v, ok := tc.DataDelta[k]; ok {
		return v, true
	}
	if tc.Session != nil {
		return tc.Session.GetData(k)
	}
	return nil, false
}

// CollectedData returns the merged view of session data plus staged delta.
func (tc *TurnContext) CollectedData() map[string]any {
	out := map[string]any{}
	if tc.Session != nil {
		maps.Copy(out, tc.Session.Data)
	}
	maps.Copy(out, tc.DataDelta)
	return out
}

// StageData stages a collected-field mutation in the in-memory delta buffer.
func (tc *TurnContext) StageData(k string, v any) { tc.DataDelta[k] = v }

// StageDataDelta merges all pairs from d into the staged DataDelta.
func (tc *TurnContext) StageDataDelta(d map[string]any) {
	maps.Copy(tc.DataDelta, d)
}

// SetValue sets an ambient template-context value for this turn.
func (tc *TurnContext) SetValue(k string, v any) {
	if tc.Values == nil {
		tc.Values = map[string]any{}
	}
	tc.Values[k] = v
}

// GetValue returns an ambient template-context value.
func (tc *TurnContext) GetValue(k string) (any, bool) {
	v, ok := tc.Values[k]
	return v, ok
}

// CommitData applies the staged DataDelta to the working session and persists
// it through the SessionStore. It is a no-op when there are no staged
// mutations.
func (tc *TurnContext) CommitData() error {
	if len(tc.DataDelta) == 0 {
		return nil
	}
	if tc.Session != nil {
		tc.Session.MergeData(tc.DataDelta)
	}
	if tc.SessionStore != nil {
		if err := tc.SessionStore.ApplyDataDelta(tc.Context, tc.SessionID, tc.DataDelta); err != nil {
			return fmt.Errorf("apply data delta: %w", err)
		}
	}
	tc.DataDelta = map[string]any{}
	return nil
}

// ConversationHistory returns the history filtered to conversational roles.
func (tc *TurnContext) ConversationHistory() []Event {
	return ConversationHistory(tc.History)
}

// LastUserMessage returns the text of the most recent user message, or "".
func (tc *TurnContext) LastUserMessage() string {
	return tc.LastMessageByRole("user")
}

// LastMessageByRole returns the text of the most recent message with the
// given role, or "" when none exists.
func (tc *TurnContext) LastMessageByRole(role string) string {
	for i := len(tc.History) - 1; i >= 0; i-- {
		ev := tc.History[i]
		if ev.Content == nil || ev.Content.Role != role || ev.IsPartial() {
			continue
		}
		if text := ev.Content.Text(); text != "" {
			return text
		}
	}
	return ""
}

// AppendHistory adds an event to the in-memory history view for this turn.
// Persistence of the event is the pipeline's responsibility.
func (tc *TurnContext) AppendHistory(ev Event) {
	tc.History = append(tc.History, ev)
}

// Clone returns a copy with deep-copied delta & values buffers. It shares
// store pointers and the session reference and is safe for speculative
// processing.
func (tc *TurnContext) Clone() *TurnContext {
	c := &TurnContext{
		Context:       tc.Context,
		SessionID:     tc.SessionID,
		TurnID:        tc.TurnID,
		Session:       tc.Session,
		History:       tc.History,
		Values:        map[string]any{},
		DataDelta:     map[string]any{},
		SessionStore:  tc.SessionStore,
		MessageStore:  tc.MessageStore,
		loggerAdapter: tc.loggerAdapter,
	}
	maps.Copy(c.Values, tc.Values)
	maps.Copy(c.DataDelta, tc.DataDelta)
	return c
}
