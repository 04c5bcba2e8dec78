package routing

import (
	"fmt"

	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/route"
)

// Reason tags explaining how a turn's route was chosen.
const (
	ReasonPendingTransition = "pending_transition"
	ReasonOnlyCandidate     = "only_candidate"
	ReasonScored            = "scored"
	ReasonSticky            = "sticky"
	ReasonNoMatch           = "no_match"
)

// Decision is the outcome of route and step selection for one turn.
// Route is nil when no route matched; Step is nil when the route completed.
type Decision struct {
	Route         *route.Route
	Step          *route.Step
	Directives    []string
	RouteComplete bool
	RouteChanged  bool
	Reason        string
}

// Options tune engine behavior.
type Options struct {
	// MinConfidence rejects scored routes below this threshold; the turn then
	// falls back to an unrouted reply.
	MinConfidence float64
	Logger        logging.Logger
}

// Engine gates, scores, and selects routes, then resolves the candidate step
// inside the winner. Routes keep their declaration order; ties and scorer
// outages resolve deterministically against that order.
type Engine struct {
	routes    []*route.Route
	scorer    Scorer
	evaluator *condition.Evaluator
	opts      Options
}

// NewEngine builds an engine over the configured routes. The scorer may be
// nil, in which case selection between multiple eligible routes falls back to
// the current route, then declaration order.
func NewEngine(routes []*route.Route, scorer Scorer, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	seen := map[string]bool{}
	for _, r := range routes {
		if seen[r.ID()] {
			return nil, fmt.Errorf("duplicate route id %q", r.ID())
		}
		seen[r.ID()] = true
	}
	return &Engine{
		routes:    routes,
		scorer:    scorer,
		evaluator: condition.NewEvaluator(opts.Logger),
		opts:      opts,
	}, nil
}

// Routes returns the configured routes in declaration order.
func (e *Engine) Routes() []*route.Route { return e.routes }

// Route looks a route up by id or title.
func (e *Engine) Route(idOrTitle string) *route.Route {
	for _, r := range e.routes {
		if r.Matches(idOrTitle) {
			return r
		}
	}
	return nil
}

// gated pairs an eligible route with the directives its activation condition
// contributed.
type gated struct {
	route      *route.Route
	directives []string
}

// SelectRoute picks the route and candidate step for this turn. A pending
// transition on the session is consumed here regardless of outcome: it either
// forces the selection or, when its target no longer exists, is dropped with
// a warning so the session cannot re-complete into it forever.
func (e *Engine) SelectRoute(turnCtx *core.TurnContext) (*Decision, error) {
	sess := turnCtx.Session
	evalCtx := condition.NewEvalContext(turnCtx)

	if pt := sess.ConsumePendingTransition(); pt != nil {
		if target := e.Route(pt.TargetRouteID); target != nil {
			turnCtx.LogInfo("applying pending transition",
				"target_route", target.ID(), "reason", pt.Reason)
			return e.decide(turnCtx, target, nil, ReasonPendingTransition), nil
		}
		turnCtx.LogWarn("pending transition target not found, dropping",
			"target_route", pt.TargetRouteID)
	}

	eligible := e.gate(evalCtx, turnCtx)
	switch len(eligible) {
	case 0:
		return &Decision{Reason: ReasonNoMatch, RouteChanged: sess.CurrentRoute != nil}, nil
	case 1:
		g := eligible[0]
		return e.decide(turnCtx, g.route, g.directives, ReasonOnlyCandidate), nil
	}

	winner, reason := e.pick(turnCtx, evalCtx, eligible)
	if winner == nil {
		return &Decision{Reason: ReasonNoMatch, RouteChanged: sess.CurrentRoute != nil}, nil
	}
	return e.decide(turnCtx, winner.route, winner.directives, reason), nil
}

// gate filters routes in declaration order: a true skip condition (OR logic)
// excludes outright, then activation predicates (AND logic) must hold.
func (e *Engine) gate(evalCtx *condition.EvalContext, turnCtx *core.TurnContext) []gated {
	var eligible []gated
	for _, r := range e.routes {
		skip := e.evaluator.Evaluate(r.SkipIf(), condition.LogicOr, evalCtx)
		if skip.Programmatic {
			turnCtx.LogDebug("route skipped", "route", r.ID())
			continue
		}
		when := e.evaluator.Evaluate(r.When(), condition.LogicAnd, evalCtx)
		if !when.Programmatic {
			turnCtx.LogDebug("route activation predicates failed", "route", r.ID())
			continue
		}
		eligible = append(eligible, gated{route: r, directives: when.AIContext})
	}
	return eligible
}

// pick resolves multiple eligible routes. Scorer verdicts decide; on a tie or
// with no usable scorer the current route wins, then the earliest declared.
func (e *Engine) pick(
	turnCtx *core.TurnContext,
	evalCtx *condition.EvalContext,
	eligible []gated,
) (*gated, string) {
	if e.scorer == nil {
		return e.pickFallback(turnCtx, eligible)
	}

	req := ScoreRequest{
		History:         turnCtx.History,
		Data:            turnCtx.CollectedData(),
		LastUserMessage: evalCtx.LastUserMessage(),
	}
	for _, g := range eligible {
		req.Candidates = append(req.Candidates, Candidate{
			ID:           g.route.ID(),
			Title:        g.route.Title(),
			Description:  g.route.Description(),
			AIConditions: g.directives,
		})
	}

	scores, err := e.scorer.Score(turnCtx.Context, req)
	if err != nil {
		turnCtx.LogWarn("route scoring failed, using fallback order", "error", err.Error())
		return e.pickFallback(turnCtx, eligible)
	}

	byID := map[string]float64{}
	for _, s := range scores {
		byID[s.RouteID] = s.Confidence
	}

	var winner *gated
	best := -1.0
	for i := range eligible {
		conf := byID[eligible[i].route.ID()]
		if conf > best {
			best = conf
			winner = &eligible[i]
		}
	}
	if winner == nil || best < e.opts.MinConfidence {
		return nil, ReasonNoMatch
	}
	return winner, ReasonScored
}

func (e *Engine) pickFallback(turnCtx *core.TurnContext, eligible []gated) (*gated, string) {
	if cur := turnCtx.Session.CurrentRoute; cur != nil {
		for i := range eligible {
			if eligible[i].route.ID() == cur.ID {
				return &eligible[i], ReasonSticky
			}
		}
	}
	return &eligible[0], ReasonScored
}

// decide resolves the candidate step inside the selected route and assembles
// the decision.
func (e *Engine) decide(
	turnCtx *core.TurnContext,
	r *route.Route,
	directives []string,
	reason string,
) *Decision {
	sess := turnCtx.Session
	changed := sess.CurrentRoute == nil || sess.CurrentRoute.ID != r.ID()

	step, complete := e.ResolveStep(turnCtx, r, changed)
	return &Decision{
		Route:         r,
		Step:          step,
		Directives:    directives,
		RouteComplete: complete,
		RouteChanged:  changed,
		Reason:        reason,
	}
}

// ResolveStep walks the step graph from the session's current step (or the
// initial step on route entry) and returns the first step that is neither
// skipped nor missing required data. Exhausting the walk means the route is
// complete when every required field is collected; otherwise the initial step
// is returned so the route always has a step to present. The pipeline calls this again after data extraction because a
// single turn can collect everything a route needs.
func (e *Engine) ResolveStep(
	turnCtx *core.TurnContext,
	r *route.Route,
	routeChanged bool,
) (*route.Step, bool) {
	evalCtx := condition.NewEvalContext(turnCtx)
	startID := r.InitialStep().ID
	if !routeChanged && turnCtx.Session.CurrentStep != nil {
		if s := r.Step(turnCtx.Session.CurrentStep.ID); s != nil {
			startID = s.ID
		}
	}

	data := turnCtx.CollectedData()
	for _, step := range r.WalkFrom(startID) {
		if !hasAll(data, step.Requires) {
			continue
		}
		skip := e.evaluator.Evaluate(step.SkipIf, condition.LogicOr, evalCtx)
		if skip.Programmatic {
			turnCtx.LogDebug("step skipped", "route", r.ID(), "step", step.ID)
			continue
		}
		return step, false
	}

	if hasAll(data, r.RequiredFields()) {
		return nil, true
	}
	turnCtx.LogWarn("no eligible step, falling back to initial",
		"route", r.ID(), "step", r.InitialStep().ID)
	return r.InitialStep(), false
}

func hasAll(data map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := data[f]; !ok {
			return false
		}
	}
	return true
}
