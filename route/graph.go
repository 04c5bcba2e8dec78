package route

// WalkFrom returns the steps reachable from startID (inclusive) in
// deterministic order: depth-first following each step's Next edges in
// declaration order, visiting each step once. The end sentinel is skipped.
// An unknown start id yields nil.
func (r *Route) WalkFrom(startID string) []*Step {
	start, ok := r.steps[startID]
	if !ok {
		return nil
	}
	visited := map[string]bool{}
	var out []*Step
	var visit func(s *Step)
	visit = func(s *Step) {
		if visited[s.ID] {
			return
		}
		visited[s.ID] = true
		out = append(out, s)
		for _, next := range s.Next {
			if next == EndOfRoute {
				continue
			}
			if succ, ok := r.steps[next]; ok {
				visit(succ)
			}
		}
	}
	visit(start)
	return out
}

// Successors returns the concrete successor steps of the given step id in
// edge declaration order, excluding the end sentinel.
func (r *Route) Successors(stepID string) []*Step {
	s, ok := r.steps[stepID]
	if !ok {
		return nil
	}
	var out []*Step
	for _, next := range s.Next {
		if next == EndOfRoute {
			continue
		}
		if succ, ok := r.steps[next]; ok {
			out = append(out, succ)
		}
	}
	return out
}

// reachesEnd reports whether any path from startID reaches the end sentinel.
func (r *Route) reachesEnd(startID string) bool {
	visited := map[string]bool{}
	var visit func(id string) bool
	visit = func(id string) bool {
		if id == EndOfRoute {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		s, ok := r.steps[id]
		if !ok {
			return false
		}
		for _, next := range s.Next {
			if visit(next) {
				return true
			}
		}
		return false
	}
	return visit(startID)
}
