package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/convomesh/convomesh/core"
)

// Reply is the decoded form of a structured model payload. Message holds the
// user-facing text, ToolCalls the requested function invocations, and Fields
// every remaining top-level property (the per-step extraction slots).
type Reply struct {
	Message   string              `json:"message"`
	ToolCalls []core.FunctionCall `json:"toolCalls,omitempty"`
	Fields    map[string]any      `json:"-"`
	Raw       json.RawMessage     `json:"-"`
}

// ParseReply decodes a structured payload. It tolerates providers that wrap
// the object in markdown fences and treats a missing toolCalls key as an
// empty call list. Any top-level key other than message/toolCalls lands in
// Fields; null-valued keys are dropped so absent slots stay absent.
func ParseReply(raw []byte) (*Reply, error) {
	trimmed := stripFences(string(raw))
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("structured payload is not valid JSON")
	}
	parsed := gjson.Parse(trimmed)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("structured payload is not a JSON object")
	}

	reply := &Reply{
		Message: parsed.Get("message").String(),
		Fields:  map[string]any{},
		Raw:     json.RawMessage(trimmed),
	}
	for _, tc := range parsed.Get("toolCalls").Array() {
		args := tc.Get("arguments").Raw
		if args == "" {
			args = "{}"
		}
		reply.ToolCalls = append(reply.ToolCalls, core.FunctionCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("name").String(),
			Arguments: args,
		})
	}
	parsed.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if k == "message" || k == "toolCalls" || value.Type == gjson.Null {
			return true
		}
		reply.Fields[k] = value.Value()
		return true
	})
	return reply, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// BuildOutputSchema assembles the JSON schema for a turn: a required message
// string, an optional toolCalls array, and one nullable slot per field the
// current step collects.
func BuildOutputSchema(collect []string) map[string]any {
	props := map[string]any{
		"message": map[string]any{
			"type":        "string",
			"description": "The assistant reply to show the user",
		},
		"toolCalls": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":        map[string]any{"type": "string"},
					"name":      map[string]any{"type": "string"},
					"arguments": map[string]any{"type": "object"},
				},
				"required": []string{"name"},
			},
		},
	}
	for _, field := range collect {
		props[field] = map[string]any{
			"type":        []string{"string", "number", "boolean", "object", "array", "null"},
			"description": "Extracted value for " + field + ", null when not yet provided",
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"message"},
	}
}

// SchemaInstruction renders an output schema as a prompt suffix for providers
// without native structured output support.
func SchemaInstruction(schema map[string]any) string {
	b, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return "Respond with a single JSON object matching this schema, no prose outside it:\n" + string(b)
}
