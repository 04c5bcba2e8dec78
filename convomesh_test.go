package convomesh_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh"
	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/pipeline"
	"github.com/convomesh/convomesh/route"
	"github.com/convomesh/convomesh/tool"
)

func feedbackRoute() *route.Route {
	return route.NewBuilder("collect-feedback", "Collect Feedback").
		When(condition.Text("User wants to leave feedback")).
		Require("rating").
		AddStep(&route.Step{ID: "ask-rating", Collect: []string{"rating"}, Next: []string{route.EndOfRoute}}).
		MustBuild()
}

func TestMeshRespond(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mesh, err := convomesh.New([]*route.Route{feedbackRoute()}, mock)
	require.NoError(t, err)

	result, err := mesh.Respond(context.Background(), "sess-1", "I want to leave feedback")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Message)
	require.NotNil(t, result.Route)
	assert.Equal(t, "collect-feedback", result.Route.ID)

	// Turn state is persisted through the default in-memory store.
	sess, err := mesh.Session(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.MessageCount)

	history, err := mesh.History(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestMeshRespondStream(t *testing.T) {
	mock := model.NewMockModel("mock", "test")
	mock.EnqueueStructured(`{"message":"How would you rate us?"}`)

	mesh, err := convomesh.New([]*route.Route{feedbackRoute()}, mock)
	require.NoError(t, err)

	var chunks []pipeline.Chunk
	for chunk := range mesh.RespondStream(context.Background(), "sess-1", "feedback please") {
		chunks = append(chunks, chunk)
	}

	require.NotEmpty(t, chunks)
	final := chunks[len(chunks)-1]
	assert.True(t, final.Done)
	require.NoError(t, final.Err)
	require.NotNil(t, final.Result)
	assert.Equal(t, "How would you rate us?", final.Result.Message)
}

func TestMeshToolRegistration(t *testing.T) {
	mesh, err := convomesh.New(nil, model.NewMockModel("mock", "test"))
	require.NoError(t, err)

	// The route handoff tool ships pre-registered.
	err = mesh.RegisterTool(tool.NewTransitionTool())
	assert.Error(t, err)

	echo := tool.NewFunctionTool("echo", "Echo input", map[string]any{"type": "object"},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) { return args, nil })
	assert.NoError(t, mesh.RegisterTool(echo))
}

func TestMeshValidateTools(t *testing.T) {
	r := route.NewBuilder("support", "Support").
		When(condition.Text("User needs support")).
		Tools("missing_tool").
		AddStep(&route.Step{ID: "help", Next: []string{route.EndOfRoute}}).
		MustBuild()

	mesh, err := convomesh.New([]*route.Route{r}, model.NewMockModel("mock", "test"))
	require.NoError(t, err)
	assert.Error(t, mesh.ValidateTools())
}
