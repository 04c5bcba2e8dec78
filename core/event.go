package core

import (
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side-effects or orchestration signals attached to an
// Event. All fields are optional so absence can be distinguished from zero
// values. The pipeline interprets these after the event is produced; tools
// never apply them directly.
type EventActions struct {
	DataDelta    map[string]any `json:"data_delta,omitempty"`    // Collected-field mutations requested by a tool
	ContextDelta map[string]any `json:"context_delta,omitempty"` // Template-context mutations requested by a tool
	Transition   *string        `json:"transition,omitempty"`    // Target route id/title requested by a tool
}

// Event is the primary unit of conversation history. After emission it should
// be treated as immutable. It captures:
//
//   - Correlation (TurnID, ID, Author)
//   - Conversational content (optional role-based Parts)
//   - Orchestration directives (Actions)
//   - Error / interruption metadata
//   - High precision UTC timestamp
//
// Content may be nil for control or error-only events.
type Event struct {
	ID           string            `json:"id"`
	TurnID       string            `json:"turn_id"`
	Author       string            `json:"author"`
	Actions      EventActions      `json:"actions"`
	Timestamp    time.Time         `json:"timestamp"`
	Content      *Content          `json:"content,omitempty"`
	Partial      *bool             `json:"partial,omitempty"`
	TurnComplete *bool             `json:"turn_complete,omitempty"`
	ErrorCode    *string           `json:"error_code,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a turn.
// Prefer helper constructors for common semantic categories.
func NewEvent(turnID, author string) Event {
	return Event{
		ID:        NewID(),
		TurnID:    turnID,
		Author:    author,
		Timestamp: time.Now().UTC(),
		Actions:   EventActions{},
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(author, message string) Event {
	e := NewEvent("", author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(turnID, message string) Event {
	e := NewEvent(turnID, "user")
	e.Content = &Content{Role: "user", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewFunctionCallEvent represents the model requesting execution of a named tool.
func NewFunctionCallEvent(author, toolName, args string) Event {
	e := NewEvent("", author)
	e.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			FunctionCallPart{
				FunctionCall: FunctionCall{Name: toolName, Arguments: args},
			},
		},
	}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a tool
// invocation. If err is non-nil its message is copied into the response Error
// field.
func NewFunctionResponseEvent(author, id, toolName string, result any, err error) Event {
	e := NewEvent("", author)
	fr := FunctionResponse{ID: id, Name: toolName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a new unique identifier for events, turns and sessions.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event represents a streaming fragment that
// will be followed by additional events composing the final assistant turn.
func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within
// the event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether the event terminates an assistant turn (no
// pending tool calls/responses and not a streaming fragment).
func (e Event) IsFinalResponse() bool {
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.IsPartial()
}

// ConversationHistory filters events to user/assistant/tool roles and
// excludes partial streaming fragments. The result is suitable for providing
// conversational context to models.
func ConversationHistory(events []Event) []Event {
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}
