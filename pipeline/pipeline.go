// Package pipeline is the per-turn orchestrator: it prepares the turn
// context, delegates route and step selection, builds the prompt, drives the
// model and the bounded tool-call loop, extracts collected data, and
// finalizes session state. Every error leaving this package carries a phase
// tag so callers can discriminate retry policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/internal/util"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/metrics"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/route"
	"github.com/convomesh/convomesh/routing"
	"github.com/convomesh/convomesh/tool"
)

// Options tune pipeline behavior.
type Options struct {
	Profile      Profile
	MaxToolLoops int
	// AutoSave persists the session and transcript at finalize time. Disable
	// to manage persistence externally.
	AutoSave bool
	Logger   logging.Logger
	Metrics  *metrics.Metrics
}

// Pipeline executes conversation turns against a configured route set.
type Pipeline struct {
	engine   *routing.Engine
	mdl      model.Model
	registry *tool.Registry
	executor *tool.Executor
	sessions core.SessionStore
	messages core.MessageStore
	logger   logging.Logger
	metrics  *metrics.Metrics
	opts     Options
}

// Result is the outcome of one completed turn.
type Result struct {
	Message       string
	Session       *core.Session
	Route         *core.RouteRef
	Step          *core.StepRef
	RouteComplete bool
	ToolResults   []tool.Result
	Events        []core.Event
}

// New assembles a pipeline. Session and message stores are required; the
// engine may have zero routes, in which case every turn takes the unrouted
// fallback path.
func New(
	engine *routing.Engine,
	mdl model.Model,
	registry *tool.Registry,
	sessions core.SessionStore,
	messages core.MessageStore,
	optFns ...func(o *Options),
) (*Pipeline, error) {
	if engine == nil {
		return nil, errors.New("routing engine is required")
	}
	if mdl == nil {
		return nil, errors.New("model is required")
	}
	if sessions == nil || messages == nil {
		return nil, errors.New("session and message stores are required")
	}
	opts := Options{
		MaxToolLoops: DefaultMaxToolLoops,
		AutoSave:     true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxToolLoops <= 0 {
		opts.MaxToolLoops = DefaultMaxToolLoops
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}
	return &Pipeline{
		engine:   engine,
		mdl:      mdl,
		registry: registry,
		executor: tool.NewExecutor(opts.Logger),
		sessions: sessions,
		messages: messages,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		opts:     opts,
	}, nil
}

// Respond runs one turn and returns the final result. The session identified
// by sessionID is created on first use. Concurrent turns against the same
// session are not serialized; overlapping writes resolve last-write-wins per
// field at the store.
func (p *Pipeline) Respond(ctx context.Context, sessionID, userMessage string) (*Result, error) {
	return p.respond(ctx, sessionID, userMessage, nil)
}

func (p *Pipeline) respond(
	ctx context.Context,
	sessionID, userMessage string,
	emit func(model.Response),
) (*Result, error) {
	started := time.Now()
	res, err := p.runTurn(ctx, sessionID, userMessage, emit)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.ObserveTurn(status, time.Since(started))
	return res, err
}

func (p *Pipeline) runTurn(
	ctx context.Context,
	sessionID, userMessage string,
	emit func(model.Response),
) (*Result, error) {
	turnCtx, userEv, err := p.prepare(ctx, sessionID, userMessage)
	if err != nil {
		return nil, err
	}
	work := turnCtx.Session

	dec, err := p.engine.SelectRoute(turnCtx)
	if err != nil {
		return nil, wrapPhase(PhaseRouting, err)
	}
	p.metrics.RecordRouteSelection(routeID(dec), dec.Reason)
	if dec.Route != nil && dec.RouteChanged {
		work.EnterRoute(dec.Route.Ref())
	}
	if dec.Step != nil {
		work.EnterStep(dec.Step.Ref())
		if dec.Step.Prepare != nil {
			if err := dec.Step.Prepare(turnCtx); err != nil {
				return nil, wrapPhase(PhaseContextPreparation,
					fmt.Errorf("step %s prepare hook: %w", dec.Step.ID, err))
			}
		}
	}

	result := &Result{Events: []core.Event{userEv}}
	switch {
	case dec.Route == nil:
		err = p.generateFallback(turnCtx, result, emit)
	case dec.RouteComplete:
		err = p.completeRoute(turnCtx, dec.Route, result, emit)
	default:
		err = p.generateRouted(turnCtx, dec, result, emit)
	}
	if err != nil {
		return nil, err
	}

	result.Session = work
	result.Route = work.CurrentRoute
	result.Step = work.CurrentStep

	if err := p.finalize(turnCtx, dec, result); err != nil {
		return nil, err
	}
	return result, nil
}

// prepare loads or creates the session, deep-clones it for this turn, and
// assembles the turn context with persisted history plus the incoming user
// message.
func (p *Pipeline) prepare(
	ctx context.Context,
	sessionID, userMessage string,
) (*core.TurnContext, core.Event, error) {
	if sessionID == "" {
		return nil, core.Event{}, wrapPhase(PhaseContextPreparation, errors.New("session id is required"))
	}
	if userMessage == "" {
		return nil, core.Event{}, wrapPhase(PhaseContextPreparation, errors.New("user message is empty"))
	}

	sess, err := p.sessions.Get(ctx, sessionID)
	if errors.Is(err, core.ErrSessionNotFound) {
		sess, err = p.sessions.Create(ctx, sessionID)
	}
	if err != nil {
		return nil, core.Event{}, wrapPhase(PhaseContextPreparation, err)
	}
	work := sess.Clone()

	history, err := p.messages.List(ctx, sessionID)
	if err != nil {
		return nil, core.Event{}, wrapPhase(PhaseContextPreparation, err)
	}

	turnID := core.NewID()
	userEv := core.NewUserMessageEvent(turnID, userMessage)
	history = append(history, userEv)

	logger := p.logger
	if tl, ok := logger.(*logging.TurnLogger); ok {
		logger = tl.WithSession(sessionID, turnID)
	}
	turnCtx := core.NewTurnContext(ctx, sessionID, turnID, work, history, nil, p.sessions, p.messages, logger)
	return turnCtx, userEv, nil
}

// generateRouted produces the reply for an active, incomplete route: routed
// prompt, structured output schema, tool loop, then data extraction. If
// extraction completes the route within this same turn, the completion flow
// takes over immediately.
func (p *Pipeline) generateRouted(
	turnCtx *core.TurnContext,
	dec *routing.Decision,
	result *Result,
	emit func(model.Response),
) error {
	r, step := dec.Route, dec.Step
	tools := resolveTools(p.registry, p.opts.Profile, r, step)
	collectable := collectableFields(r, step)

	req := model.Request{
		Instructions: buildInstructions(p.opts.Profile, r, step, dec.Directives, turnCtx.CollectedData()),
		Contents:     contentsFromHistory(turnCtx.History),
		Tools:        toolDefinitions(tools),
		OutputSchema: model.BuildOutputSchema(collectable),
		Stream:       emit != nil,
	}

	resp, err := p.generate(turnCtx, req, emit)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}
	reply, err := p.parseReply(resp)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}

	loop, err := p.runToolLoop(turnCtx, req, reply, emit)
	result.ToolResults = append(result.ToolResults, loop.results...)
	result.Events = append(result.Events, loop.events...)
	if err != nil {
		return err
	}

	if delta := extractFields(loop.reply.Fields, collectable); delta != nil {
		turnCtx.StageDataDelta(delta)
	}
	turnCtx.Session.MergeData(turnCtx.DataDelta)

	// A single rich turn may have collected everything the route needs.
	nextStep, complete := p.engine.ResolveStep(turnCtx, r, false)
	if complete {
		return p.completeRoute(turnCtx, r, result, emit)
	}
	if nextStep != nil {
		turnCtx.Session.EnterStep(nextStep.Ref())
	}

	result.Message = loop.reply.Message
	result.Events = append(result.Events, assistantEvent(turnCtx.TurnID, loop.reply.Message))
	return nil
}

// completeRoute generates the wrap-up message from the route's end-step
// configuration, then records the on-complete transition (if any) as a
// pending transition so the user sees the completion message before the
// handoff.
func (p *Pipeline) completeRoute(
	turnCtx *core.TurnContext,
	r *route.Route,
	result *Result,
	emit func(model.Response),
) error {
	work := turnCtx.Session
	data := turnCtx.CollectedData()

	req := model.Request{
		Instructions: buildCompletionInstructions(p.opts.Profile, r, data),
		Contents:     contentsFromHistory(turnCtx.History),
		OutputSchema: model.BuildOutputSchema(nil),
		Stream:       emit != nil,
	}
	resp, err := p.generate(turnCtx, req, emit)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}
	reply, err := p.parseReply(resp)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}

	if target := r.OnComplete(); target != "" {
		if p.engine.Route(target) == nil {
			turnCtx.LogWarn("on-complete target not found, skipping transition",
				"route", r.ID(), "target_route", target)
		} else {
			cond := transitionCondition(r, data)
			work.SetPendingTransition(core.PendingTransition{
				TargetRouteID: target,
				Condition:     cond,
				Reason:        core.ReasonRouteComplete,
			})
		}
	}
	work.LeaveRoute()

	result.Message = reply.Message
	result.RouteComplete = true
	result.Events = append(result.Events, assistantEvent(turnCtx.TurnID, reply.Message))
	turnCtx.LogInfo("route completed", "route", r.ID())
	return nil
}

// generateFallback covers turns with no matching route: an unscoped,
// tool-free reply from history and global rules.
func (p *Pipeline) generateFallback(
	turnCtx *core.TurnContext,
	result *Result,
	emit func(model.Response),
) error {
	req := model.Request{
		Instructions: buildFallbackInstructions(p.opts.Profile),
		Contents:     contentsFromHistory(turnCtx.History),
		OutputSchema: model.BuildOutputSchema(nil),
		Stream:       emit != nil,
	}
	resp, err := p.generate(turnCtx, req, emit)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}
	reply, err := p.parseReply(resp)
	if err != nil {
		return wrapPhase(PhaseGeneration, err)
	}
	result.Message = reply.Message
	result.Events = append(result.Events, assistantEvent(turnCtx.TurnID, reply.Message))
	return nil
}

// finalize persists the session and transcript (when auto-save is on) and
// runs the active step's finalize hook.
func (p *Pipeline) finalize(turnCtx *core.TurnContext, dec *routing.Decision, result *Result) error {
	if p.opts.AutoSave {
		if err := p.sessions.Save(turnCtx.Context, turnCtx.Session); err != nil {
			return wrapPhase(PhaseFinalize, err)
		}
		for _, ev := range result.Events {
			if err := p.messages.Append(turnCtx.Context, turnCtx.SessionID, ev); err != nil {
				return wrapPhase(PhaseFinalize, err)
			}
		}
		if err := p.sessions.IncrementMessageCount(turnCtx.Context, turnCtx.SessionID); err != nil {
			return wrapPhase(PhaseFinalize, err)
		}
	}
	if dec.Step != nil && dec.Step.Finalize != nil {
		if err := dec.Step.Finalize(turnCtx); err != nil {
			return wrapPhase(PhaseFinalize,
				fmt.Errorf("step %s finalize hook: %w", dec.Step.ID, err))
		}
	}
	return nil
}

// generate drains one model call, forwarding partial chunks to emit and
// returning the final response. Provider failure is surfaced to the caller;
// this core never retries provider calls itself.
func (p *Pipeline) generate(
	turnCtx *core.TurnContext,
	req model.Request,
	emit func(model.Response),
) (*model.Response, error) {
	respCh, errCh := p.mdl.Generate(turnCtx.Context, req)
	var final *model.Response
	for r := range respCh {
		if r.Partial {
			if emit != nil {
				emit(r)
			}
			continue
		}
		rr := r
		final = &rr
	}
	err := <-errCh
	p.metrics.RecordModelCall(p.mdl.Info().Provider, err)
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("model returned no final response")
	}
	return final, nil
}

// parseReply decodes a final model response into a structured reply. A
// response without a structured payload degrades to a plain-text message.
func (p *Pipeline) parseReply(resp *model.Response) (*model.Reply, error) {
	if len(resp.Structured) == 0 {
		return &model.Reply{
			Message: resp.Content.Text(),
			Fields:  map[string]any{},
		}, nil
	}
	reply, err := model.ParseReply(resp.Structured)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// contentsFromHistory converts persisted events into model contents, dropping
// partial chunks and non-conversational events.
func contentsFromHistory(events []core.Event) []core.Content {
	history := core.ConversationHistory(events)
	contents := make([]core.Content, 0, len(history))
	for _, ev := range history {
		if ev.Content != nil {
			contents = append(contents, *ev.Content)
		}
	}
	return contents
}

// transitionCondition renders the natural-language reason recorded on a
// pending transition.
func transitionCondition(r *route.Route, data map[string]any) string {
	rendered, err := util.RenderTemplate(
		"The {{.route}} flow has completed and the user should be handed off.",
		map[string]any{"route": r.Title(), "data": data},
	)
	if err != nil {
		return fmt.Sprintf("The %s flow has completed.", r.Title())
	}
	return rendered
}

func assistantEvent(turnID, message string) core.Event {
	ev := core.NewMessageEvent("assistant", message)
	ev.TurnID = turnID
	done := true
	ev.TurnComplete = &done
	return ev
}

func routeID(dec *routing.Decision) string {
	if dec.Route == nil {
		return ""
	}
	return dec.Route.ID()
}
