package tool

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
)

// Result is the structured outcome of one tool invocation. Business-level
// failure is reported through Success/Error, never as a Go error: a failed
// tool degrades gracefully (the model simply doesn't get that result) instead
// of losing the whole response to one bad call. Update instructions are
// applied only by the pipeline, never by the tool itself.
type Result struct {
	CallID        string         `json:"call_id"`
	Tool          string         `json:"tool"`
	Success       bool           `json:"success"`
	Data          any            `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ContextUpdate map[string]any `json:"context_update,omitempty"`
	DataUpdate    map[string]any `json:"data_update,omitempty"`
	Transition    *string        `json:"transition,omitempty"`
	Duration      time.Duration  `json:"-"`
}

// Executor invokes a single tool against current context/data. It must:
//   - Respect the turn context's cancellation
//   - Never panic (recover internally and report failure)
//   - Produce exactly one Result per invocation
//   - Surface ToolContext accumulated actions on the Result
type Executor struct {
	logger logging.Logger
}

// NewExecutor constructs an Executor. A nil logger falls back to NoOp.
func NewExecutor(logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Executor{logger: logger}
}

// Execute runs one function call against the registry. Unknown tools and bad
// argument payloads are failures on the Result, not Go errors.
func (e *Executor) Execute(turnCtx *core.TurnContext, registry *Registry, call core.FunctionCall) Result {
	res := Result{CallID: call.ID, Tool: call.Name}

	if err := turnCtx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	impl, ok := registry.Get(call.Name)
	if !ok {
		res.Error = fmt.Sprintf("tool %s not found", call.Name)
		e.logger.Warn("tool.execute.unknown", "tool", call.Name)
		return res
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			res.Error = fmt.Sprintf("failed to unmarshal args: %v", err)
			e.logger.Warn("tool.execute.bad_args", "tool", call.Name, "error", err.Error())
			return res
		}
	}

	toolCtx := core.NewToolContext(turnCtx, call.ID)

	start := time.Now()
	var (
		data any
		err  error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic recovered: %v", r)
				e.logger.Error("tool.execute.panic", "tool", call.Name, "recover", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			}
		}()
		data, err = impl.Call(toolCtx, args)
	}()
	res.Duration = time.Since(start)

	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
		res.Data = data
	}

	actions := toolCtx.Actions()
	res.ContextUpdate = actions.ContextDelta
	res.DataUpdate = actions.DataDelta
	res.Transition = actions.Transition

	e.logger.Info(
		"tool.execute.done",
		"tool", call.Name,
		"fc_id", call.ID,
		"duration_ms", res.Duration.Milliseconds(),
		"success", res.Success,
	)

	return res
}

// ResponseEvent converts a Result into the function-response history event
// consumed by the follow-up model turn.
func (r Result) ResponseEvent(author string) core.Event {
	var err error
	if !r.Success {
		err = fmt.Errorf("%s", r.Error)
	}
	return core.NewFunctionResponseEvent(author, r.CallID, r.Tool, r.Data, err)
}
