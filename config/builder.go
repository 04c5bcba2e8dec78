package config

import (
	"fmt"
	"strings"

	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/route"
)

// predicateRef marks a condition entry that resolves to a registered
// predicate instead of a natural-language string.
const predicateRef = "fn:"

// BuildRoutes assembles routes from declarative specs. Condition entries are
// natural-language strings by default; an entry of the form "fn:name" resolves
// to a predicate registered under that name, so deterministic gates can be
// mixed into YAML-declared routes. Unresolvable predicate references fail here,
// at configuration time.
func BuildRoutes(specs []RouteSpec, predicates map[string]condition.PredicateFunc) ([]*route.Route, error) {
	routes := make([]*route.Route, 0, len(specs))
	for _, spec := range specs {
		r, err := buildRoute(spec, predicates)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", spec.ID, err)
		}
		routes = append(routes, r)
	}
	return routes, nil
}

func buildRoute(spec RouteSpec, predicates map[string]condition.PredicateFunc) (*route.Route, error) {
	b := route.NewBuilder(spec.ID, spec.Title).
		Description(spec.Description).
		Require(spec.Require...).
		Optional(spec.Optional...).
		Tools(spec.Tools...).
		DomainScope(spec.DomainScope...).
		OnComplete(spec.OnComplete)

	if when, err := buildCondition(spec.When, predicates); err != nil {
		return nil, fmt.Errorf("when: %w", err)
	} else if when != nil {
		b.When(when)
	}
	if skip, err := buildCondition(spec.SkipIf, predicates); err != nil {
		return nil, fmt.Errorf("skip_if: %w", err)
	} else if skip != nil {
		b.SkipIf(skip)
	}

	for name, text := range spec.Rules {
		b.Rule(name, text)
	}
	for name, text := range spec.Prohibitions {
		b.Prohibition(name, text)
	}
	for _, g := range spec.Guidelines {
		b.Guideline(g)
	}
	for name, def := range spec.Terms {
		b.Term(name, def)
	}
	if spec.End.Prompt != "" || len(spec.End.Fields) > 0 {
		b.End(spec.End.Prompt, spec.End.Fields...)
	}

	for _, stepSpec := range spec.Steps {
		skip, err := buildCondition(stepSpec.SkipIf, predicates)
		if err != nil {
			return nil, fmt.Errorf("step %q skip_if: %w", stepSpec.ID, err)
		}
		b.AddStep(&route.Step{
			ID:          stepSpec.ID,
			Description: stepSpec.Description,
			Collect:     stepSpec.Collect,
			Requires:    stepSpec.Requires,
			SkipIf:      skip,
			Tools:       stepSpec.Tools,
			Next:        stepSpec.Next,
		})
	}
	if spec.Initial != "" {
		b.Initial(spec.Initial)
	}
	return b.Build()
}

// buildCondition turns a list of entries into a condition expression. A nil
// expression (empty list) keeps the logic's neutral default.
func buildCondition(entries []string, predicates map[string]condition.PredicateFunc) (condition.Expr, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	exprs := make([]condition.Expr, 0, len(entries))
	for _, entry := range entries {
		if name, ok := strings.CutPrefix(entry, predicateRef); ok {
			fn, found := predicates[name]
			if !found {
				return nil, fmt.Errorf("unknown predicate %q", name)
			}
			exprs = append(exprs, condition.Fn(name, fn))
			continue
		}
		exprs = append(exprs, condition.Text(entry))
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return condition.All(exprs...), nil
}
