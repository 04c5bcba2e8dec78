// Package model defines the provider-agnostic generation port used by the
// routing engine and the response pipeline, plus a mock implementation for
// tests and examples. Concrete adapters live in model/openai and
// model/anthropic.
package model

import (
	"context"
	"encoding/json"

	"github.com/convomesh/convomesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the pipeline.
// OutputSchema, when set, constrains the final chunk to a single JSON object
// matching the schema; providers that lack native structured output emit the
// schema as an instruction suffix instead.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	OutputSchema map[string]any   `json:"output_schema,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Structured carries the raw JSON payload of the final chunk when the request
// set an OutputSchema; partial chunks never populate it.
type Response struct {
	ID           string          `json:"id"`
	Partial      bool            `json:"partial"`
	Content      core.Content    `json:"content"`
	Structured   json.RawMessage `json:"structured,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive conversation turns.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}
