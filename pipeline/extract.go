package pipeline

import (
	"github.com/convomesh/convomesh/route"
)

// collectableFields is the set of field names a turn may legally extract: the
// current step's collect list plus the route's required and optional fields.
// A route can be completed in a single rich user turn, so extraction is not
// limited to the step at hand.
func collectableFields(r *route.Route, step *route.Step) []string {
	var names []string
	seen := map[string]bool{}
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	if step != nil {
		add(step.Collect)
	}
	if r != nil {
		add(r.RequiredFields())
		add(r.OptionalFields())
	}
	return names
}

// extractFields filters a structured reply's fields down to the allowed
// collectable names, dropping nils. Merging the result is idempotent: a model
// repeating an already-collected value changes nothing, while a corrected
// value supplied by the user overwrites (last write wins per field).
func extractFields(fields map[string]any, allowed []string) map[string]any {
	if len(fields) == 0 || len(allowed) == 0 {
		return nil
	}
	delta := map[string]any{}
	for _, name := range allowed {
		if v, ok := fields[name]; ok && v != nil {
			delta[name] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}
