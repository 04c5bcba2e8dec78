package core

import (
	"context"
	"fmt"

	"github.com/convomesh/convomesh/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked during the tool-call loop. It accumulates update
// instructions (collected-data deltas, template-context deltas, transition
// requests) without directly mutating the underlying session; the pipeline
// applies them at one call site after the tool returns.
type ToolContext struct {
	turnCtx        *TurnContext
	functionCallID string
	actions        EventActions
	valid          bool

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent TurnContext and
// unique functionCallID.
func NewToolContext(turnCtx *TurnContext, functionCallID string) *ToolContext {
	return &ToolContext{
		turnCtx:        turnCtx,
		functionCallID: functionCallID,
		actions:        EventActions{},
		valid:          true,
		loggerAdapter:  newLoggerAdapter(turnCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.turnCtx.Context }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.turnCtx.SessionID }

// TurnID returns the turn ID associated with the tool invocation.
func (tc *ToolContext) TurnID() string { return tc.turnCtx.TurnID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID correlating the model request
// with this execution.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// GetData retrieves a collected field visible to this turn (staged or stored).
func (tc *ToolContext) GetData(k string) (any, bool) {
	return tc.turnCtx.GetData(k)
}

// CollectedData returns the merged collected-data view for this turn.
func (tc *ToolContext) CollectedData() map[string]any {
	return tc.turnCtx.CollectedData()
}

// GetValue retrieves an ambient template-context value.
func (tc *ToolContext) GetValue(k string) (any, bool) {
	return tc.turnCtx.GetValue(k)
}

// SetData records a collected-field update instruction. The mutation is not
// applied until the pipeline merges the accumulated actions.
func (tc *ToolContext) SetData(k string, v any) {
	if tc.actions.DataDelta == nil {
		tc.actions.DataDelta = map[string]any{}
	}
	tc.actions.DataDelta[k] = v
}

// SetValue records a template-context update instruction.
func (tc *ToolContext) SetValue(k string, v any) {
	if tc.actions.ContextDelta == nil {
		tc.actions.ContextDelta = map[string]any{}
	}
	tc.actions.ContextDelta[k] = v
}

// RequestTransition signals orchestration to hand the conversation off to
// another route on the next turn.
func (tc *ToolContext) RequestTransition(routeID string) {
	tc.actions.Transition = &routeID
	tc.LogInfo("tool.transition.request", "target_route", routeID, "function_call_id", tc.functionCallID)
}

// Actions returns the update instructions accumulated by the tool.
func (tc *ToolContext) Actions() *EventActions { return &tc.actions }

// ConversationHistory returns the conversation history for context.
func (tc *ToolContext) ConversationHistory() []Event {
	return tc.turnCtx.ConversationHistory()
}

// LastUserMessage returns the most recent user message text, or "".
func (tc *ToolContext) LastUserMessage() string { return tc.turnCtx.LastUserMessage() }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if !tc.valid || tc.turnCtx == nil || tc.turnCtx.SessionID == "" || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}

// InternalApplyActions merges accumulated update instructions into the
// provided event. (Used by the pipeline when finalizing tool invocation
// events.)
func (tc *ToolContext) InternalApplyActions(ev *Event) {
	if len(tc.actions.DataDelta) > 0 {
		if ev.Actions.DataDelta == nil {
			ev.Actions.DataDelta = map[string]any{}
		}
		for k, v := range tc.actions.DataDelta {
			ev.Actions.DataDelta[k] = v
		}
	}
	if len(tc.actions.ContextDelta) > 0 {
		if ev.Actions.ContextDelta == nil {
			ev.Actions.ContextDelta = map[string]any{}
		}
		for k, v := range tc.actions.ContextDelta {
			ev.Actions.ContextDelta[k] = v
		}
	}
	if tc.actions.Transition != nil {
		ev.Actions.Transition = tc.actions.Transition
		tc.LogInfo("tool.transition.applied", "target_route", *tc.actions.Transition, "function_call_id", tc.functionCallID)
	}
}
