package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTurnContext(sess *Session, history []Event) *TurnContext {
	return NewTurnContext(context.Background(), sess.ID, "turn-1", sess, history, nil, nil, nil, nil)
}

func TestTurnContextStagedDataShadowsSession(t *testing.T) {
	sess := NewSession("sess-1")
	sess.SetData("hotel_name", "Ritz")

	tc := newTestTurnContext(sess, nil)

	v, ok := tc.GetData("hotel_name")
	require.True(t, ok)
	assert.Equal(t, "Ritz", v)

	tc.StageData("hotel_name", "Savoy")
	tc.StageDataDelta(map[string]any{"guests": 2})

	v, _ = tc.GetData("hotel_name")
	assert.Equal(t, "Savoy", v)

	// Session stays untouched until the delta is committed.
	v, _ = sess.GetData("hotel_name")
	assert.Equal(t, "Ritz", v)

	merged := tc.CollectedData()
	assert.Equal(t, map[string]any{"hotel_name": "Savoy", "guests": 2}, merged)
}

func TestTurnContextCommitData(t *testing.T) {
	sess := NewSession("sess-1")
	tc := newTestTurnContext(sess, nil)

	// No staged delta, nothing to do.
	require.NoError(t, tc.CommitData())

	tc.StageData("check_in", "2026-09-01")
	require.NoError(t, tc.CommitData())

	v, ok := sess.GetData("check_in")
	require.True(t, ok)
	assert.Equal(t, "2026-09-01", v)
	assert.Empty(t, tc.DataDelta)
}

func TestTurnContextValues(t *testing.T) {
	tc := newTestTurnContext(NewSession("sess-1"), nil)

	_, ok := tc.GetValue("availability")
	assert.False(t, ok)

	tc.SetValue("availability", map[string]any{"available": true})
	v, ok := tc.GetValue("availability")
	require.True(t, ok)
	assert.NotNil(t, v)
}

func TestTurnContextLastMessageByRole(t *testing.T) {
	p := true
	partial := NewMessageEvent("agent", "frag")
	partial.Partial = &p

	history := []Event{
		NewUserMessageEvent("turn-1", "first"),
		NewMessageEvent("agent", "which hotel?"),
		NewUserMessageEvent("turn-2", "the Ritz"),
		partial,
	}
	tc := newTestTurnContext(NewSession("sess-1"), history)

	assert.Equal(t, "the Ritz", tc.LastUserMessage())
	assert.Equal(t, "which hotel?", tc.LastMessageByRole("assistant"))
	assert.Equal(t, "", tc.LastMessageByRole("tool"))

	tc.AppendHistory(NewUserMessageEvent("turn-3", "actually the Savoy"))
	assert.Equal(t, "actually the Savoy", tc.LastUserMessage())
}

func TestTurnContextCloneIsolatesBuffers(t *testing.T) {
	tc := newTestTurnContext(NewSession("sess-1"), nil)
	tc.StageData("hotel_name", "Ritz")
	tc.SetValue("key", "v1")

	clone := tc.Clone()
	clone.StageData("hotel_name", "Savoy")
	clone.SetValue("key", "v2")

	v, _ := tc.GetData("hotel_name")
	assert.Equal(t, "Ritz", v)
	val, _ := tc.GetValue("key")
	assert.Equal(t, "v1", val)
}
