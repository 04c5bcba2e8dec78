package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/route"
	"github.com/convomesh/convomesh/routing"
	"github.com/convomesh/convomesh/session"
	"github.com/convomesh/convomesh/tool"
)

func hasField(field string) condition.Expr {
	return condition.Fn("has_"+field, func(ctx *condition.EvalContext) (bool, error) {
		return ctx.HasData(field), nil
	})
}

func bookingRoute() *route.Route {
	return route.NewBuilder("book-hotel", "Book Hotel").
		Description("Help the user book a hotel room.").
		When(condition.Text("User wants to book a hotel")).
		Require("hotel_name", "check_in", "guests").
		OnComplete("collect-feedback").
		End("Confirm the booking details with the user.", "hotel_name", "check_in").
		Tools("check_availability").
		AddStep(&route.Step{
			ID:          "ask-hotel",
			Description: "Ask which hotel the user wants.",
			Collect:     []string{"hotel_name"},
			SkipIf:      hasField("hotel_name"),
			Next:        []string{"ask-details"},
		}).
		AddStep(&route.Step{
			ID:          "ask-details",
			Description: "Ask for dates and party size.",
			Collect:     []string{"check_in", "guests"},
			Requires:    []string{"hotel_name"},
			SkipIf: condition.Fn("has_details", func(ctx *condition.EvalContext) (bool, error) {
				return ctx.HasData("check_in") && ctx.HasData("guests"), nil
			}),
			Next: []string{route.EndOfRoute},
		}).
		MustBuild()
}

func feedbackRoute() *route.Route {
	return route.NewBuilder("collect-feedback", "Collect Feedback").
		When(condition.Text("User wants to leave feedback")).
		AddStep(&route.Step{ID: "ask-rating", Collect: []string{"rating"}, Next: []string{route.EndOfRoute}}).
		MustBuild()
}

type fixture struct {
	pipeline *Pipeline
	mock     *model.MockModel
	store    *session.InMemoryStore
}

func newFixture(t *testing.T, routes []*route.Route, tools ...tool.Tool) *fixture {
	t.Helper()
	engine, err := routing.NewEngine(routes, nil)
	require.NoError(t, err)

	registry := tool.NewRegistry()
	registry.MustRegister(tools...)

	mock := model.NewMockModel("mock", "mock")
	store := session.NewInMemoryStore()

	p, err := New(engine, mock, registry, store, store, func(o *Options) {
		o.Profile = Profile{
			Name:  "Concierge",
			Rules: map[string]string{"tone": "Stay friendly and concise."},
			Tools: []string{},
		}
	})
	require.NoError(t, err)
	return &fixture{pipeline: p, mock: mock, store: store}
}

func TestRespondCollectsAndAdvances(t *testing.T) {
	f := newFixture(t, []*route.Route{bookingRoute(), feedbackRoute()})
	f.mock.EnqueueStructured(`{"message": "Got it, the Grand Hotel. When would you like to stay?", "hotel_name": "Grand Hotel"}`)

	res, err := f.pipeline.Respond(context.Background(), "sess-1", "I want to book the Grand Hotel")
	require.NoError(t, err)

	assert.Equal(t, "Got it, the Grand Hotel. When would you like to stay?", res.Message)
	assert.False(t, res.RouteComplete)
	assert.Equal(t, "Grand Hotel", res.Session.Data["hotel_name"])
	require.NotNil(t, res.Route)
	assert.Equal(t, "book-hotel", res.Route.ID)
	require.NotNil(t, res.Step)
	assert.Equal(t, "ask-details", res.Step.ID, "step advances once its field is collected")

	// Persisted snapshot matches the returned session.
	saved, err := f.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Grand Hotel", saved.Data["hotel_name"])
	assert.Equal(t, 1, saved.MessageCount)

	history, err := f.store.List(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Author)
	assert.Equal(t, "assistant", history[1].Author)
}

func TestRespondSingleTurnCompletion(t *testing.T) {
	// All required fields arrive in one turn: the first response must report
	// completion and record the on-complete transition as pending.
	f := newFixture(t, []*route.Route{bookingRoute(), feedbackRoute()})
	f.mock.EnqueueStructured(`{
		"message": "Let me confirm those details.",
		"hotel_name": "Grand Hotel",
		"check_in": "2026-09-01",
		"guests": 2
	}`)
	f.mock.EnqueueStructured(`{"message": "Your booking at the Grand Hotel is confirmed!"}`)

	res, err := f.pipeline.Respond(context.Background(), "sess-1",
		"Book the Grand Hotel for 2 guests from September 1st")
	require.NoError(t, err)

	assert.True(t, res.RouteComplete)
	assert.Equal(t, "Your booking at the Grand Hotel is confirmed!", res.Message)
	require.NotNil(t, res.Session.PendingTransition)
	assert.Equal(t, "collect-feedback", res.Session.PendingTransition.TargetRouteID)
	assert.Equal(t, core.ReasonRouteComplete, res.Session.PendingTransition.Reason)
	assert.Nil(t, res.Session.CurrentRoute, "completed route is left")

	// The pending transition forces the feedback route on the next turn.
	f.mock.EnqueueStructured(`{"message": "How would you rate your experience?"}`)
	res, err = f.pipeline.Respond(context.Background(), "sess-1", "thanks!")
	require.NoError(t, err)
	require.NotNil(t, res.Route)
	assert.Equal(t, "collect-feedback", res.Route.ID)
	assert.Nil(t, res.Session.PendingTransition)
}

func TestRespondToolFailureDegrades(t *testing.T) {
	failing := tool.NewFunctionTool("check_availability", "Check room availability",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("timeout")
		})

	f := newFixture(t, []*route.Route{bookingRoute()}, failing)
	f.mock.EnqueueStructured(`{
		"message": "Checking availability.",
		"toolCalls": [{"id": "call_1", "name": "check_availability", "arguments": {}}]
	}`)
	f.mock.EnqueueStructured(`{"message": "I could not verify availability, but let's continue."}`)

	res, err := f.pipeline.Respond(context.Background(), "sess-1", "book a hotel")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)

	require.Len(t, res.ToolResults, 1)
	assert.False(t, res.ToolResults[0].Success)
	assert.Contains(t, res.ToolResults[0].Error, "timeout")

	// The follow-up prompt must not carry the failed tool's result.
	reqs := f.mock.Requests()
	require.Len(t, reqs, 2)
	followUp := reqs[1]
	for _, c := range followUp.Contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			_, isResponse := p.(core.FunctionResponsePart)
			assert.False(t, isResponse, "failed results are excluded from follow-up history")
		}
	}
}

func TestRespondToolLoopCap(t *testing.T) {
	calls := 0
	chatty := tool.NewFunctionTool("check_availability", "Check room availability",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			calls++
			return map[string]any{"available": true}, nil
		})

	f := newFixture(t, []*route.Route{bookingRoute()}, chatty)
	for i := range 7 {
		f.mock.EnqueueStructured(fmt.Sprintf(`{
			"message": "round %d",
			"toolCalls": [{"id": "call_%d", "name": "check_availability", "arguments": {}}]
		}`, i, i))
	}

	res, err := f.pipeline.Respond(context.Background(), "sess-1", "book a hotel")
	require.NoError(t, err)

	assert.Equal(t, 5, calls, "execution stops after the configured round cap")
	assert.Len(t, f.mock.Requests(), 6, "one initial call plus five follow-ups")
	assert.Equal(t, "round 5", res.Message, "last follow-up message is returned as final")
}

func TestRespondToolDataUpdateApplied(t *testing.T) {
	availability := tool.NewFunctionTool("check_availability", "Check room availability",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			toolCtx.SetData("hotel_name", "Grand Hotel")
			return map[string]any{"available": true}, nil
		})

	f := newFixture(t, []*route.Route{bookingRoute()}, availability)
	f.mock.EnqueueStructured(`{
		"message": "Let me check.",
		"toolCalls": [{"id": "call_1", "name": "check_availability", "arguments": {}}]
	}`)
	f.mock.EnqueueStructured(`{"message": "The Grand Hotel has rooms available."}`)

	res, err := f.pipeline.Respond(context.Background(), "sess-1", "any rooms at the Grand?")
	require.NoError(t, err)
	assert.Equal(t, "Grand Hotel", res.Session.Data["hotel_name"],
		"tool data updates are applied by the pipeline")
}

func TestRespondExtractionIdempotent(t *testing.T) {
	f := newFixture(t, []*route.Route{bookingRoute()})
	f.mock.EnqueueStructured(`{"message": "Noted.", "hotel_name": "Grand Hotel"}`)
	f.mock.EnqueueStructured(`{"message": "Yes, the Grand Hotel.", "hotel_name": "Grand Hotel"}`)

	_, err := f.pipeline.Respond(context.Background(), "sess-1", "the Grand Hotel please")
	require.NoError(t, err)
	res, err := f.pipeline.Respond(context.Background(), "sess-1", "yes the Grand Hotel")
	require.NoError(t, err)

	assert.Equal(t, "Grand Hotel", res.Session.Data["hotel_name"])

	// A corrected value still wins.
	f.mock.EnqueueStructured(`{"message": "Switching to the Plaza.", "hotel_name": "Plaza"}`)
	res, err = f.pipeline.Respond(context.Background(), "sess-1", "actually make it the Plaza")
	require.NoError(t, err)
	assert.Equal(t, "Plaza", res.Session.Data["hotel_name"])
}

func TestRespondFallbackWithoutRoutes(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.EnqueueStructured(`{"message": "Happy to help with anything else."}`)

	res, err := f.pipeline.Respond(context.Background(), "sess-1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "Happy to help with anything else.", res.Message)
	assert.Nil(t, res.Route)

	reqs := f.mock.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].Tools, "fallback replies are tool-free")
}

type brokenModel struct{}

func (brokenModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	close(respCh)
	errCh <- errors.New("provider unavailable")
	close(errCh)
	return respCh, errCh
}

func (brokenModel) Info() model.Info { return model.Info{Name: "broken", Provider: "test"} }

func TestRespondProviderFailurePhaseTagged(t *testing.T) {
	engine, err := routing.NewEngine([]*route.Route{bookingRoute()}, nil)
	require.NoError(t, err)
	store := session.NewInMemoryStore()
	p, err := New(engine, brokenModel{}, nil, store, store)
	require.NoError(t, err)

	_, err = p.Respond(context.Background(), "sess-1", "book a hotel")
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseGeneration, perr.Phase)
}

func TestRespondValidation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.pipeline.Respond(context.Background(), "", "hi")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseContextPreparation, perr.Phase)

	_, err = f.pipeline.Respond(context.Background(), "sess-1", "")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseContextPreparation, perr.Phase)
}

func TestRespondStepHooks(t *testing.T) {
	var prepared, finalized bool
	r := route.NewBuilder("hooked", "Hooked").
		AddStep(&route.Step{
			ID:       "only",
			Prepare:  func(*core.TurnContext) error { prepared = true; return nil },
			Finalize: func(*core.TurnContext) error { finalized = true; return nil },
			Next:     []string{route.EndOfRoute},
		}).
		MustBuild()

	f := newFixture(t, []*route.Route{r})
	f.mock.EnqueueStructured(`{"message": "hello"}`)

	_, err := f.pipeline.Respond(context.Background(), "sess-1", "hi")
	require.NoError(t, err)
	assert.True(t, prepared)
	assert.True(t, finalized)
}

func TestRespondStream(t *testing.T) {
	f := newFixture(t, []*route.Route{bookingRoute()})
	f.mock.Enqueue(model.Response{
		Partial:      false,
		Content:      core.NewTextContent("assistant", `{"message": "Which hotel?"}`),
		Structured:   []byte(`{"message": "Which hotel?"}`),
		FinishReason: "stop",
	})

	var chunks []Chunk
	for ck := range f.pipeline.RespondStream(context.Background(), "sess-1", "book a hotel") {
		chunks = append(chunks, ck)
	}

	require.NotEmpty(t, chunks)
	final := chunks[len(chunks)-1]
	assert.True(t, final.Done)
	require.NoError(t, final.Err)
	require.NotNil(t, final.Result)
	assert.Equal(t, "Which hotel?", final.Result.Message)
}
