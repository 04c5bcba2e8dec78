// Package openai implements model.Model on top of the OpenAI Chat
// Completions API, including streaming, function calling, and structured
// output via response_format json_schema. It converts the normalized
// Request/Response shapes into SDK messages and back.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/model"
)

// Options configure the OpenAI model adapter. Fields mirror a minimal subset
// of Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.newParams(req)
		if req.Stream {
			m.streamCompletion(ctx, req, params, out, errCh)
			return
		}
		m.completeOnce(ctx, req, params, out, errCh)
	}()
	return out, errCh
}

// newParams assembles the SDK request: transcript messages, sampling
// parameters, tool definitions, and strict structured output when the
// request carries an output schema.
func (m *Model) newParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            toMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if req.OutputSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "turn_response",
					Schema: req.OutputSchema,
				},
			},
		}
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Function.Name,
					Description: openai.String(tdef.Function.Description),
					Parameters:  tdef.Function.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

// toMessages flattens normalized contents into chat messages. Tool responses
// must follow the assistant message that issued their calls, so they are
// indexed by call id first and attached in place; any orphans are appended at
// the end in first-seen order.
func toMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	pendingResponses, order := indexToolResponses(req.Contents)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		switch c.Role {
		case "tool":
			// Attached next to their originating assistant message below.
		case "system":
			messages = append(messages, openai.SystemMessage(c.Text()))
		case "user":
			messages = append(messages, openai.UserMessage(c.Text()))
		case "assistant":
			messages = appendAssistant(messages, c, pendingResponses)
		default:
			if text := c.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := pendingResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// appendAssistant emits an assistant message and, when it carries tool calls,
// the matching tool response messages directly after it.
func appendAssistant(
	messages []openai.ChatCompletionMessageParamUnion,
	c core.Content,
	pendingResponses map[string]string,
) []openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok {
			continue
		}
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.FunctionCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.FunctionCall.Name,
				Arguments: fc.FunctionCall.Arguments,
			},
		})
		callIDs = append(callIDs, fc.FunctionCall.ID)
	}

	if len(toolCalls) == 0 {
		return append(messages, openai.AssistantMessage(c.Text()))
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Role:      "assistant",
			ToolCalls: toolCalls,
		},
	})
	for _, id := range callIDs {
		if id == "" {
			continue
		}
		if resp, ok := pendingResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
			delete(pendingResponses, id)
		}
	}
	return messages
}

// indexToolResponses maps function response parts by call id, keeping
// first-seen order for orphan handling.
func indexToolResponses(contents []core.Content) (map[string]string, []string) {
	responses := map[string]string{}
	var order []string
	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, seen := responses[fr.FunctionResponse.ID]; seen {
				continue
			}
			responses[fr.FunctionResponse.ID] = transcriptText(fr.FunctionResponse)
			order = append(order, fr.FunctionResponse.ID)
		}
	}
	return responses, order
}

// transcriptText renders a tool result for the transcript. Maps and slices
// are serialized as JSON so the model sees structure, not Go syntax.
func transcriptText(fr core.FunctionResponse) string {
	if s, ok := fr.Response.(string); ok {
		return s
	}
	if b, err := json.Marshal(fr.Response); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", fr.Response)
}

// aggCall accumulates streamed tool call deltas (id, name, arguments) so a
// complete function call part can be emitted with the final chunk.
type aggCall struct{ id, name, args string }

// streamCompletion forwards partial text and tool-call deltas as they arrive
// and closes with one final chunk carrying the full text, tool calls, and
// structured payload.
func (m *Model) streamCompletion(
	ctx context.Context,
	req model.Request,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var text strings.Builder
	calls := map[int64]*aggCall{}

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if delta := choice.Delta.Content; delta != "" {
				text.WriteString(delta)
				out <- model.Response{
					Partial: true,
					Content: core.NewTextContent("assistant", delta),
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				ac := calls[tc.Index]
				if ac == nil {
					ac = &aggCall{}
					calls[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				ac.args += tc.Function.Arguments
				out <- model.Response{
					Partial: true,
					Content: core.Content{
						Role:  "assistant",
						Parts: []core.Part{callPart(ac)},
					},
				}
			}
			if choice.FinishReason != "" {
				out <- finalStreamedResponse(req, choice.FinishReason, text.String(), calls)
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func callPart(ac *aggCall) core.Part {
	return core.FunctionCallPart{FunctionCall: core.FunctionCall{
		ID:        ac.id,
		Name:      ac.name,
		Arguments: ac.args,
	}}
}

func finalStreamedResponse(
	req model.Request,
	finishReason, text string,
	calls map[int64]*aggCall,
) model.Response {
	parts := make([]core.Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	for _, ac := range calls {
		parts = append(parts, callPart(ac))
	}
	final := model.Response{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: finishReason,
	}
	if req.OutputSchema != nil && text != "" {
		final.Structured = json.RawMessage(text)
	}
	return final
}

// completeOnce performs a single blocking completion call.
func (m *Model) completeOnce(
	ctx context.Context,
	req model.Request,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}

	choice := resp.Choices[0]
	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	final := model.Response{
		Partial:      false,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if req.OutputSchema != nil && choice.Message.Content != "" {
		final.Structured = json.RawMessage(choice.Message.Content)
	}
	out <- final
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}
