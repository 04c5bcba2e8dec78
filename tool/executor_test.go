package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/core"
)

func registryWith(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(tools...)
	return r
}

func TestExecutor_Success(t *testing.T) {
	greet := NewFunctionTool(
		"greet",
		"Greet a user",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []string{"name"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			tc.SetData("greeted", true)
			tc.SetValue("lastGreeting", args["name"])
			return "hello " + args["name"].(string), nil
		},
	)

	exec := NewExecutor(nil)
	res := exec.Execute(newTurnContext(t), registryWith(t, greet), core.FunctionCall{
		ID:        "fc-1",
		Name:      "greet",
		Arguments: `{"name":"Ada"}`,
	})

	assert.True(t, res.Success)
	assert.Equal(t, "hello Ada", res.Data)
	assert.Empty(t, res.Error)
	assert.Equal(t, map[string]any{"greeted": true}, res.DataUpdate)
	assert.Equal(t, map[string]any{"lastGreeting": "Ada"}, res.ContextUpdate)
	assert.Nil(t, res.Transition)
}

// Business-level tool failure must be captured on the Result, never thrown:
// the calling loop logs and continues with remaining tool calls.
func TestExecutor_BusinessFailure(t *testing.T) {
	failing := NewFunctionTool(
		"check_availability",
		"Check room availability",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("timeout")
		},
	)

	exec := NewExecutor(nil)
	res := exec.Execute(newTurnContext(t), registryWith(t, failing), core.FunctionCall{
		ID:   "fc-2",
		Name: "check_availability",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timeout")
	assert.Nil(t, res.Data)
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec := NewExecutor(nil)
	res := exec.Execute(newTurnContext(t), NewRegistry(), core.FunctionCall{ID: "fc-3", Name: "missing"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestExecutor_MalformedArguments(t *testing.T) {
	echo := NewFunctionTool(
		"echo",
		"Echo",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) { return args, nil },
	)

	exec := NewExecutor(nil)
	res := exec.Execute(newTurnContext(t), registryWith(t, echo), core.FunctionCall{
		ID:        "fc-4",
		Name:      "echo",
		Arguments: `{"broken`,
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unmarshal")
}

func TestExecutor_PanicRecovered(t *testing.T) {
	panicking := NewFunctionTool(
		"panics",
		"Panics",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			panic("index out of range")
		},
	)

	exec := NewExecutor(nil)
	res := exec.Execute(newTurnContext(t), registryWith(t, panicking), core.FunctionCall{ID: "fc-5", Name: "panics"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panic recovered")
}

func TestResult_ResponseEvent(t *testing.T) {
	ok := Result{CallID: "fc-1", Tool: "greet", Success: true, Data: "hello"}
	ev := ok.ResponseEvent("agent")
	responses := ev.GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "hello", responses[0].Response)
	assert.Empty(t, responses[0].Error)

	failed := Result{CallID: "fc-2", Tool: "greet", Error: "timeout"}
	ev = failed.ResponseEvent("agent")
	responses = ev.GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "timeout", responses[0].Error)
}
