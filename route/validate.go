package route

import "fmt"

// validateStructure checks the route's internal graph invariants at build
// time: an existing initial step, resolvable edges, completion reachability
// and required-field coverage.
func (r *Route) validateStructure() error {
	if len(r.steps) == 0 {
		return fmt.Errorf("route %s: no steps declared", r.id)
	}
	if _, ok := r.steps[r.initial]; !ok {
		return fmt.Errorf("route %s: initial step %q does not exist", r.id, r.initial)
	}

	for _, id := range r.order {
		s := r.steps[id]
		for _, next := range s.Next {
			if next == EndOfRoute {
				continue
			}
			if _, ok := r.steps[next]; !ok {
				return fmt.Errorf("route %s: step %q links to unknown step %q", r.id, id, next)
			}
		}
	}

	if !r.reachesEnd(r.initial) {
		return fmt.Errorf("route %s: no path from initial step %q reaches end of route", r.id, r.initial)
	}

	// Every required field must be collectable by some step, otherwise the
	// route can never complete.
	collectable := map[string]bool{}
	for _, id := range r.order {
		for _, f := range r.steps[id].Collect {
			collectable[f] = true
		}
	}
	for _, f := range r.required {
		if !collectable[f] {
			return fmt.Errorf("route %s: required field %q is not collected by any step", r.id, f)
		}
	}

	return nil
}

// ValidateTools checks at configuration time that every tool referenced by
// the route or its steps exists in the provided registry names. Catching a
// typo'd tool id here beats silently dropping it at runtime.
func (r *Route) ValidateTools(known map[string]bool) error {
	for _, name := range r.tools {
		if !known[name] {
			return fmt.Errorf("route %s: unknown tool %q", r.id, name)
		}
	}
	for _, id := range r.order {
		for _, name := range r.steps[id].Tools {
			if !known[name] {
				return fmt.Errorf("route %s: step %q references unknown tool %q", r.id, id, name)
			}
		}
	}
	return nil
}
