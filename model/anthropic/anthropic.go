// Package anthropic provides a model wrapper for the Anthropic Messages API.
// The API has no response_format equivalent, so structured output is requested
// through a schema instruction appended to the system prompt.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements non-streaming generation against the Messages API.
// Streaming requests fall back to a single final chunk.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.client.Messages.New(ctx, m.newParams(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}
		out <- m.toResponse(req, resp)
	}()

	return out, errCh
}

func (m *Model) newParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    toMessages(req.Contents),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}
	if blocks := systemBlocks(req); len(blocks) > 0 {
		params.System = blocks
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
	}
	return params
}

// toResponse converts message content blocks into the normalized response.
// Text blocks double as the structured payload when a schema was requested.
func (m *Model) toResponse(req model.Request, resp *anthropic.Message) model.Response {
	var parts []core.Part
	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			tb := block.AsText()
			if tb.Text == "" {
				continue
			}
			parts = append(parts, core.TextPart{Text: tb.Text})
			text += tb.Text
		case "tool_use":
			tu := block.AsToolUse()
			args := "{}"
			if tu.Input != nil {
				if b, err := json.Marshal(tu.Input); err == nil {
					args = string(b)
				}
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			}})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}
	final := model.Response{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	if req.OutputSchema != nil && text != "" {
		final.Structured = json.RawMessage(text)
	}
	return final
}

// systemBlocks combines instructions, system contents, and the schema
// instruction for structured output requests.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	if req.OutputSchema != nil {
		if instr := model.SchemaInstruction(req.OutputSchema); instr != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: instr})
		}
	}
	return blocks
}

// toMessages converts normalized contents to Anthropic message params. Tool
// results are indexed by call id and embedded right after the assistant turn
// that requested them so call/result pairs stay adjacent.
func toMessages(contents []core.Content) []anthropic.MessageParam {
	toolResults := indexToolResults(contents)

	var messages []anthropic.MessageParam
	for _, c := range contents {
		switch c.Role {
		case "system", "tool":
			// System goes into params.System; tool results are embedded below.
		case "assistant":
			if blocks := assistantBlocks(c.Parts, toolResults); len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range c.Parts {
				if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(tp.Text))
				}
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewUserMessage(blocks...))
			}
		}
	}
	return messages
}

func indexToolResults(contents []core.Content) map[string]string {
	results := map[string]string{}
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			switch v := fr.FunctionResponse.Response.(type) {
			case string:
				results[fr.FunctionResponse.ID] = v
			default:
				if b, err := json.Marshal(v); err == nil {
					results[fr.FunctionResponse.ID] = string(b)
				} else {
					results[fr.FunctionResponse.ID] = fmt.Sprintf("%v", v)
				}
			}
		}
	}
	return results
}

// assistantBlocks renders an assistant turn's text and tool_use blocks, then
// appends the matching tool_result blocks so call/result pairs stay adjacent.
func assistantBlocks(
	parts []core.Part,
	toolResults map[string]string,
) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	var callIDs []string

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			var input any
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = part.FunctionCall.Arguments
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))
			callIDs = append(callIDs, part.FunctionCall.ID)
		}
	}

	for _, id := range callIDs {
		if result, ok := toolResults[id]; ok {
			blocks = append(blocks, anthropic.NewToolResultBlock(id, result, false))
			delete(toolResults, id)
		}
	}
	return blocks
}

// toolParams converts tool definitions to the Anthropic tool format.
func toolParams(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if params := t.Function.Parameters; params != nil {
			if properties, ok := params["properties"]; ok {
				schema.Properties = properties
			}
			switch required := params["required"].(type) {
			case []string:
				schema.Required = required
			case []any:
				var names []string
				for _, r := range required {
					if s, ok := r.(string); ok {
						names = append(names, s)
					}
				}
				schema.Required = names
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
	}
	return out
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
