package tool

import (
	"fmt"
	"time"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool. It validates model supplied arguments against a lightweight
// JSON-Schema-like specification before execution and normalizes error
// handling so callers receive *ToolError with consistent codes:
//
//	VALIDATION_ERROR  -> schema / argument mismatch
//	EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//	(custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	domain      string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Option mutates FunctionTool construction parameters.
type Option func(t *FunctionTool)

// WithDomain tags the tool with a domain for route scoping.
func WithDomain(domain string) Option {
	return func(t *FunctionTool) { t.domain = domain }
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	slots := NewFunctionTool(
//	  "check_availability",
//	  "Check available rooms for a hotel and date",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "hotelName": map[string]any{"type": "string"},
//	      "date":      map[string]any{"type": "string"},
//	    },
//	    "required": []string{"hotelName", "date"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return lookupRooms(args["hotelName"].(string), args["date"].(string))
//	  },
//	  WithDomain("booking"),
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...Option,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection. It is a convenience for simple argument containers.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	opts ...Option,
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, opts...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Domain returns the tool's domain tag ("" when untagged).
func (t *FunctionTool) Domain() string { return t.domain }

// Call validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCtx.FunctionCallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> just log and forward
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
