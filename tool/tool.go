// Package tool implements the tool calling subsystem that lets the response
// pipeline invoke structured capabilities (APIs, computations, side-effects)
// with schema validated arguments, consistent error handling and rich
// metadata for model guidance. Tools never mutate session state directly: all
// mutation instructions travel back through the ToolContext and are applied
// by the pipeline at a single auditable call site.
package tool

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/internal/util"
)

// Tool defines the interface for extending the engine with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Report expected failures through the returned error, never panic
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case
	// recommended).
	Name() string

	// Description returns a human-readable description provided to the model
	// so it understands when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments and a ToolContext.
	// Arguments are parsed from JSON and validated against the schema.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Domainer is optionally implemented by tools that belong to a tool domain
// (e.g. "booking", "payments"). Routes may scope reachable domains; tools
// without a domain are always in scope.
type Domainer interface {
	Domain() string
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
