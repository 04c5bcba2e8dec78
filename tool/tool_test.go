package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
)

func newTurnContext(t *testing.T) *core.TurnContext {
	t.Helper()
	sess := core.NewSession("sess-1")
	return core.NewTurnContext(context.Background(), "sess-1", "turn-1", sess, nil, nil, nil, nil, nil)
}

func TestFunctionTool_Call(t *testing.T) {
	sum := NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	toolCtx := core.NewToolContext(newTurnContext(t), "fc-1")

	result, err := sum.Call(toolCtx, map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	echo := NewFunctionTool(
		"echo",
		"Echo a message",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []string{"message"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return args["message"], nil
		},
	)

	toolCtx := core.NewToolContext(newTurnContext(t), "fc-1")

	_, err := echo.Call(toolCtx, map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool(
		"failing",
		"Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("upstream timeout")
		},
	)

	toolCtx := core.NewToolContext(newTurnContext(t), "fc-1")

	_, err := failing.Call(toolCtx, map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Contains(t, toolErr.Error(), "upstream timeout")
}

func TestFunctionTool_PreservesCustomToolError(t *testing.T) {
	custom := NewFunctionTool(
		"custom",
		"Returns a custom coded error",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, NewToolError("custom", "no slots available", "NO_SLOTS")
		},
	)

	toolCtx := core.NewToolContext(newTurnContext(t), "fc-1")

	_, err := custom.Call(toolCtx, map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "NO_SLOTS", toolErr.Code)
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type BookingArgs struct {
		HotelName string `json:"hotelName" description:"Hotel to book"`
		Guests    int    `json:"guests"`
		Notes     string `json:"notes,omitempty"`
	}

	booking := NewFunctionToolFromStruct(
		"create_booking",
		"Create a booking",
		BookingArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) { return "ok", nil },
		WithDomain("booking"),
	)

	assert.Equal(t, "booking", booking.Domain())

	schema := booking.Parameters()
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "hotelName")
	assert.Contains(t, props, "guests")
	assert.ElementsMatch(t, []string{"hotelName", "guests"}, schema["required"])
}

func TestTransitionTool(t *testing.T) {
	turnCtx := newTurnContext(t)
	toolCtx := core.NewToolContext(turnCtx, "fc-9")

	tr := NewTransitionTool()
	_, err := tr.Call(toolCtx, map[string]any{"route": "collect-feedback", "reason": "booking done"})
	require.NoError(t, err)

	actions := toolCtx.Actions()
	require.NotNil(t, actions.Transition)
	assert.Equal(t, "collect-feedback", *actions.Transition)
}
