package tool

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
)

// TransitionToolName identifies the built-in route handoff tool.
const TransitionToolName = "transition_to_route"

// NewTransitionTool builds the tool that lets the model hand the
// conversation off to another route. The handoff is recorded as a pending
// transition and applied at the start of the next turn's routing phase, so
// the user always sees the current reply first.
func NewTransitionTool() *FunctionTool {
	return NewFunctionTool(
		TransitionToolName,
		"Hand the conversation off to another conversational route when the current one no longer fits.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"route": map[string]any{
					"type":        "string",
					"description": "Id or title of the target route",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Short rationale for the handoff",
				},
			},
			"required": []string{"route"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			target, _ := args["route"].(string)
			if target == "" {
				return nil, NewToolError(TransitionToolName, "route must not be empty", "VALIDATION_ERROR")
			}
			toolCtx.RequestTransition(target)
			reason, _ := args["reason"].(string)
			return fmt.Sprintf("transition to %q requested (%s)", target, reason), nil
		},
	)
}
