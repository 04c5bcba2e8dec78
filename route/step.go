package route

import (
	"github.com/convomesh/convomesh/condition"
	"github.com/convomesh/convomesh/core"
)

// EndOfRoute is the reserved terminal sentinel. Steps whose outgoing edges
// reach it mark their route as completable once all required fields are
// collected. It is not a real step and may not be declared as one.
const EndOfRoute = "__end_of_route__"

// HookFunc is an optional step hook run by the pipeline around response
// generation. Prepare hooks pre-fetch reference data into the turn's ambient
// values before prompting; Finalize hooks run after the turn's reply is
// produced. Hooks must respect the turn context's cancellation.
type HookFunc func(turnCtx *core.TurnContext) error

// Step is one stage within a route's flow. Steps form a directed graph via
// their Next edges; alternate branches (e.g. a "no slots available" path) are
// modeled as alternate outgoing edges, and the routing engine always resolves
// to exactly one via skip/requires filtering; branch selection is a pure
// function of current data, which keeps replay deterministic.
type Step struct {
	// ID uniquely identifies the step within its route.
	ID string

	// Description is the human-readable prompt driving this stage.
	Description string

	// Collect lists the fields this step tries to extract from the user.
	Collect []string

	// Requires lists fields that must already be collected before this step
	// is eligible.
	Requires []string

	// SkipIf excludes the step when programmatically true under OR-logic.
	SkipIf condition.Expr

	// Tools restricts the tool set while on this step. Empty means the step
	// inherits the route/agent tool set unrestricted.
	Tools []string

	// Next holds ordered successor step ids; EndOfRoute marks a terminal
	// edge. Declaration order is the tie-break order during candidate
	// selection.
	Next []string

	// Prepare optionally pre-fetches reference data before prompting.
	Prepare HookFunc

	// Finalize optionally runs after the turn's reply is produced.
	Finalize HookFunc
}

// IsTerminal reports whether the step has an edge to the end sentinel.
func (s *Step) IsTerminal() bool {
	for _, next := range s.Next {
		if next == EndOfRoute {
			return true
		}
	}
	return false
}

// Ref returns the session-facing reference for this step.
func (s *Step) Ref() core.StepRef {
	return core.StepRef{ID: s.ID, Description: s.Description}
}

// AllowsTool reports whether the step's allow-list admits the named tool.
// An empty allow-list admits everything.
func (s *Step) AllowsTool(name string) bool {
	if len(s.Tools) == 0 {
		return true
	}
	for _, t := range s.Tools {
		if t == name {
			return true
		}
	}
	return false
}
