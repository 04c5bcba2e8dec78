package pipeline

import "fmt"

// Phase tags identify where in the turn a failure surfaced. They are attached
// to every error returned to the caller so retry policy can discriminate.
const (
	PhaseContextPreparation = "pipeline_context_preparation"
	PhaseRouting            = "routing_and_step_selection"
	PhaseGeneration         = "response_generation"
	PhaseToolExecution      = "tool_execution"
	PhaseFinalize           = "finalize"
)

// Error wraps a turn failure with its phase tag. Tool business failures and
// predicate failures never become an Error; only faults that prevent a
// meaningful reply do.
type Error struct {
	Phase string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapPhase tags err with a phase, passing nil through.
func wrapPhase(phase string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Phase: phase, Err: err}
}
