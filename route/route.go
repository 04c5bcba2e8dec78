// Package route defines conversational routes: named flows with an
// activation condition and a directed graph of steps walked by the routing
// engine. Routes are created at configuration time and are structurally
// immutable thereafter; all per-conversation data lives in the session, never
// in the route.
package route

import (
	"fmt"

	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/core"
)

// EndSpec configures the dedicated wrap-up turn generated when a route
// completes.
type EndSpec struct {
	// Prompt drives the completion message.
	Prompt string
	// Fields names collected values worth echoing back in the wrap-up.
	Fields []string
}

// Route is a named conversational flow. Structure is fixed after Build; the
// routing engine and pipeline only read it.
type Route struct {
	id          string
	title       string
	description string

	when   condition.Expr
	skipIf condition.Expr

	steps   map[string]*Step
	order   []string // declaration order, used for deterministic walks
	initial string

	end        EndSpec
	onComplete string

	required []string
	optional []string

	rules        map[string]string
	prohibitions map[string]string
	guidelines   []string
	terms        map[string]string

	tools       []string
	domainScope []string
}

// ID returns the route's unique identifier.
func (r *Route) ID() string { return r.id }

// Title returns the route's display title.
func (r *Route) Title() string { return r.title }

// Description returns the natural-language description used for scoring.
func (r *Route) Description() string { return r.description }

// When returns the activation condition expression.
func (r *Route) When() condition.Expr { return r.when }

// SkipIf returns the skip condition expression.
func (r *Route) SkipIf() condition.Expr { return r.skipIf }

// InitialStep returns the declared entry step.
func (r *Route) InitialStep() *Step { return r.steps[r.initial] }

// Step returns the step with the given id, or nil.
func (r *Route) Step(id string) *Step { return r.steps[id] }

// Steps returns all steps in declaration order.
func (r *Route) Steps() []*Step {
	out := make([]*Step, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.steps[id])
	}
	return out
}

// End returns the wrap-up turn configuration.
func (r *Route) End() EndSpec { return r.end }

// OnComplete returns the id/title of the route to transition to after
// completion, or "" when none is configured.
func (r *Route) OnComplete() string { return r.onComplete }

// RequiredFields returns the fields that must be collected for completion.
func (r *Route) RequiredFields() []string { return r.required }

// OptionalFields returns fields the route may collect but does not need.
func (r *Route) OptionalFields() []string { return r.optional }

// Rules returns the route-level named rules.
func (r *Route) Rules() map[string]string { return r.rules }

// Prohibitions returns the route-level named prohibitions.
func (r *Route) Prohibitions() map[string]string { return r.prohibitions }

// Guidelines returns the route-level guideline strings.
func (r *Route) Guidelines() []string { return r.guidelines }

// Terms returns the route-level glossary terms.
func (r *Route) Terms() map[string]string { return r.terms }

// Tools returns the route-level tool names.
func (r *Route) Tools() []string { return r.tools }

// DomainScope returns the tool domains reachable from this route. An empty
// scope means unrestricted. Domain scoping exists purely to stop unrelated
// tools (e.g. payment tools inside a support-only route) from ever being
// callable, independent of what the model is shown.
func (r *Route) DomainScope() []string { return r.domainScope }

// Ref returns the session-facing reference for this route.
func (r *Route) Ref() core.RouteRef { return core.RouteRef{ID: r.id, Title: r.title} }

// Matches reports whether the given id or title identifies this route.
func (r *Route) Matches(idOrTitle string) bool {
	return idOrTitle == r.id || idOrTitle == r.title
}

// Builder assembles a Route. Use NewBuilder, chain configuration calls, add
// steps with AddStep, then Build (which validates the graph).
type Builder struct {
	route *Route
	errs  []error
}

// NewBuilder starts a route definition with the mandatory id and title.
func NewBuilder(id, title string) *Builder {
	return &Builder{route: &Route{
		id:           id,
		title:        title,
		steps:        map[string]*Step{},
		rules:        map[string]string{},
		prohibitions: map[string]string{},
		terms:        map[string]string{},
	}}
}

// Description sets the natural-language description used for route scoring.
func (b *Builder) Description(d string) *Builder {
	b.route.description = d
	return b
}

// When sets the activation condition expression.
func (b *Builder) When(expr condition.Expr) *Builder {
	b.route.when = expr
	return b
}

// SkipIf sets the skip condition expression (OR-logic gating).
func (b *Builder) SkipIf(expr condition.Expr) *Builder {
	b.route.skipIf = expr
	return b
}

// Require appends required collectible fields.
func (b *Builder) Require(fields ...string) *Builder {
	b.route.required = append(b.route.required, fields...)
	return b
}

// Optional appends optional collectible fields.
func (b *Builder) Optional(fields ...string) *Builder {
	b.route.optional = append(b.route.optional, fields...)
	return b
}

// Rule adds a named route-level rule (overrides an agent rule of the same name).
func (b *Builder) Rule(name, text string) *Builder {
	b.route.rules[name] = text
	return b
}

// Prohibition adds a named route-level prohibition.
func (b *Builder) Prohibition(name, text string) *Builder {
	b.route.prohibitions[name] = text
	return b
}

// Guideline appends a route-level guideline string.
func (b *Builder) Guideline(text string) *Builder {
	b.route.guidelines = append(b.route.guidelines, text)
	return b
}

// Term adds a glossary term definition.
func (b *Builder) Term(name, definition string) *Builder {
	b.route.terms[name] = definition
	return b
}

// Tools appends route-level tool names.
func (b *Builder) Tools(names ...string) *Builder {
	b.route.tools = append(b.route.tools, names...)
	return b
}

// DomainScope restricts reachable tool domains.
func (b *Builder) DomainScope(domains ...string) *Builder {
	b.route.domainScope = append(b.route.domainScope, domains...)
	return b
}

// OnComplete sets the id/title of the route to hand off to after completion.
func (b *Builder) OnComplete(target string) *Builder {
	b.route.onComplete = target
	return b
}

// End configures the wrap-up turn.
func (b *Builder) End(prompt string, fields ...string) *Builder {
	b.route.end = EndSpec{Prompt: prompt, Fields: fields}
	return b
}

// AddStep registers a step. The first added step becomes the initial step
// unless Initial overrides it.
func (b *Builder) AddStep(s *Step) *Builder {
	if s == nil || s.ID == "" {
		b.errs = append(b.errs, fmt.Errorf("route %s: step without id", b.route.id))
		return b
	}
	if s.ID == EndOfRoute {
		b.errs = append(b.errs, fmt.Errorf("route %s: step id %q is reserved", b.route.id, EndOfRoute))
		return b
	}
	if _, dup := b.route.steps[s.ID]; dup {
		b.errs = append(b.errs, fmt.Errorf("route %s: duplicate step %q", b.route.id, s.ID))
		return b
	}
	b.route.steps[s.ID] = s
	b.route.order = append(b.route.order, s.ID)
	if b.route.initial == "" {
		b.route.initial = s.ID
	}
	return b
}

// Initial overrides the entry step.
func (b *Builder) Initial(stepID string) *Builder {
	b.route.initial = stepID
	return b
}

// Build validates the assembled route and returns it. Validation failures at
// build time catch typos before runtime.
func (b *Builder) Build() (*Route, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if err := b.route.validateStructure(); err != nil {
		return nil, err
	}
	return b.route, nil
}

// MustBuild is Build panicking on error; intended for static configuration.
func (b *Builder) MustBuild() *Route {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}
