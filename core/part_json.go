package core

import (
	"encoding/json"
	"fmt"
)

// partEnvelope is the wire form of a Part. A type discriminator keeps the
// closed sum decodable after a persistence round-trip.
type partEnvelope struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

// MarshalJSON implements json.Marshaler for Content.
func (c Content) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			envelopes = append(envelopes, partEnvelope{
				Type: partTypeText, Text: part.Text, Metadata: part.Metadata,
			})
		case DataPart:
			envelopes = append(envelopes, partEnvelope{
				Type: partTypeData, Data: part.Data, Metadata: part.Metadata,
			})
		case FunctionCallPart:
			fc := part.FunctionCall
			envelopes = append(envelopes, partEnvelope{
				Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: part.Metadata,
			})
		case FunctionResponsePart:
			fr := part.FunctionResponse
			envelopes = append(envelopes, partEnvelope{
				Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: part.Metadata,
			})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envelopes})
}

// UnmarshalJSON implements json.Unmarshaler for Content.
func (c *Content) UnmarshalJSON(b []byte) error {
	var wire struct {
		Role  string         `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	c.Role = wire.Role
	c.Parts = make([]Part, 0, len(wire.Parts))
	for _, env := range wire.Parts {
		switch env.Type {
		case partTypeText:
			c.Parts = append(c.Parts, TextPart{Text: env.Text, Metadata: env.Metadata})
		case partTypeData:
			c.Parts = append(c.Parts, DataPart{Data: env.Data, Metadata: env.Metadata})
		case partTypeFunctionCall:
			var fc FunctionCall
			if env.FunctionCall != nil {
				fc = *env.FunctionCall
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: fc, Metadata: env.Metadata})
		case partTypeFunctionResponse:
			var fr FunctionResponse
			if env.FunctionResponse != nil {
				fr = *env.FunctionResponse
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: fr, Metadata: env.Metadata})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}
	return nil
}
