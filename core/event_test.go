package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventConstructors(t *testing.T) {
	user := NewUserMessageEvent("turn-1", "book me a room")
	assert.Equal(t, "turn-1", user.TurnID)
	assert.Equal(t, "user", user.Author)
	require.NotNil(t, user.Content)
	assert.Equal(t, "user", user.Content.Role)
	assert.Equal(t, "book me a room", user.Content.Text())

	msg := NewMessageEvent("agent", "Which hotel?")
	assert.Equal(t, "agent", msg.Author)
	assert.Equal(t, "assistant", msg.Content.Role)
	assert.NotEmpty(t, msg.ID)

	call := NewFunctionCallEvent("agent", "check_availability", `{"hotel_name":"Ritz"}`)
	calls := call.GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "check_availability", calls[0].Name)

	resp := NewFunctionResponseEvent("agent", "call-1", "check_availability",
		map[string]any{"available": true}, nil)
	responses := resp.GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "call-1", responses[0].ID)
	assert.Empty(t, responses[0].Error)
	assert.Equal(t, "tool", resp.Content.Role)

	failed := NewFunctionResponseEvent("agent", "call-2", "check_availability",
		nil, errors.New("upstream timeout"))
	assert.Equal(t, "upstream timeout", failed.GetFunctionResponses()[0].Error)
}

func TestIsFinalResponse(t *testing.T) {
	msg := NewMessageEvent("agent", "done")
	assert.True(t, msg.IsFinalResponse())

	call := NewFunctionCallEvent("agent", "check_availability", "{}")
	assert.False(t, call.IsFinalResponse())

	partial := NewMessageEvent("agent", "str")
	p := true
	partial.Partial = &p
	assert.True(t, partial.IsPartial())
	assert.False(t, partial.IsFinalResponse())
}

func TestConversationHistoryFilters(t *testing.T) {
	p := true
	partial := NewMessageEvent("agent", "frag")
	partial.Partial = &p

	control := NewEvent("turn-1", "system")

	events := []Event{
		NewUserMessageEvent("turn-1", "hello"),
		partial,
		control,
		NewMessageEvent("agent", "hi there"),
		NewFunctionResponseEvent("agent", "c1", "lookup", "ok", nil),
	}

	history := ConversationHistory(events)
	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Content.Role)
	assert.Equal(t, "assistant", history[1].Content.Role)
	assert.Equal(t, "tool", history[2].Content.Role)
}

func TestContentJSONRoundTrip(t *testing.T) {
	original := Content{
		Role: "assistant",
		Parts: []Part{
			TextPart{Text: "checking availability"},
			DataPart{Data: map[string]any{"guests": float64(2)}},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "check_availability", Arguments: "{}"}},
			FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "c1", Name: "check_availability", Response: map[string]any{"available": true}}},
		},
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Content
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, original, restored)
}

func TestContentUnmarshalUnknownPartType(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"video"}]}`), &c)
	assert.Error(t, err)
}

func TestEventJSONRoundTrip(t *testing.T) {
	done := true
	ev := NewUserMessageEvent("turn-7", "two guests from friday")
	ev.TurnComplete = &done
	ev.Actions.DataDelta = map[string]any{"guests": float64(2)}

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var restored Event
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Equal(t, ev.ID, restored.ID)
	assert.Equal(t, ev.TurnID, restored.TurnID)
	require.NotNil(t, restored.TurnComplete)
	assert.True(t, *restored.TurnComplete)
	assert.Equal(t, ev.Actions.DataDelta, restored.Actions.DataDelta)
	assert.Equal(t, "two guests from friday", restored.Content.Text())
}
