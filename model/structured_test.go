package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	raw := []byte(`{
		"message": "I found availability at the Grand Hotel.",
		"toolCalls": [{"id": "call_1", "name": "check_availability", "arguments": {"hotel": "Grand Hotel"}}],
		"hotel_name": "Grand Hotel",
		"check_in": null
	}`)

	reply, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, "I found availability at the Grand Hotel.", reply.Message)

	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_1", reply.ToolCalls[0].ID)
	assert.Equal(t, "check_availability", reply.ToolCalls[0].Name)
	assert.JSONEq(t, `{"hotel": "Grand Hotel"}`, reply.ToolCalls[0].Arguments)

	assert.Equal(t, "Grand Hotel", reply.Fields["hotel_name"])
	_, present := reply.Fields["check_in"]
	assert.False(t, present, "null slots must stay absent")
	assert.NotContains(t, reply.Fields, "message")
	assert.NotContains(t, reply.Fields, "toolCalls")
}

func TestParseReplyFenced(t *testing.T) {
	raw := []byte("```json\n{\"message\": \"hi\"}\n```")
	reply, err := ParseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Message)
	assert.Empty(t, reply.ToolCalls)
}

func TestParseReplyInvalid(t *testing.T) {
	_, err := ParseReply([]byte("not json"))
	assert.Error(t, err)

	_, err = ParseReply([]byte(`["array"]`))
	assert.Error(t, err)
}

func TestParseReplyMissingArguments(t *testing.T) {
	reply, err := ParseReply([]byte(`{"message":"m","toolCalls":[{"name":"lookup"}]}`))
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "{}", reply.ToolCalls[0].Arguments)
}

func TestBuildOutputSchema(t *testing.T) {
	schema := BuildOutputSchema([]string{"hotel_name", "check_in"})

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "message")
	assert.Contains(t, props, "toolCalls")
	assert.Contains(t, props, "hotel_name")
	assert.Contains(t, props, "check_in")
	assert.Equal(t, []string{"message"}, schema["required"])
}

func TestMockModelScript(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.EnqueueStructured(`{"message": "first"}`)
	m.EnqueueStructured(`{"message": "second"}`)

	for _, want := range []string{"first", "second"} {
		respCh, errCh := m.Generate(context.Background(), Request{})
		var final Response
		for r := range respCh {
			final = r
		}
		require.NoError(t, <-errCh)
		reply, err := ParseReply(final.Structured)
		require.NoError(t, err)
		assert.Equal(t, want, reply.Message)
	}
	assert.Len(t, m.Requests(), 2)
}
