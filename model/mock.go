package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/convomesh/convomesh/core"
)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned responses can be keyed by the last user text or enqueued as a FIFO
// script; scripted responses win, which lets tests drive multi-call turns
// (tool loop follow-ups) deterministically.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	script    []Response
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends a scripted response consumed in order, one per Generate call.
func (m *MockModel) Enqueue(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resp)
}

// EnqueueStructured is a shorthand for scripting a final structured chunk.
func (m *MockModel) EnqueueStructured(payload string) {
	m.Enqueue(Response{
		Partial:      false,
		Content:      core.NewTextContent("assistant", payload),
		Structured:   json.RawMessage(payload),
		FinishReason: "stop",
	})
}

// Requests returns every request seen so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming char chunks then the
// final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var scripted *Response
	if len(m.script) > 0 {
		scripted = &m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if scripted != nil {
			m.emit(ctx, req, *scripted, respCh, errCh)
			return
		}
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		inputText := last.Text()
		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		final := Response{
			Partial:      false,
			Content:      core.NewTextContent("assistant", full),
			FinishReason: "stop",
		}
		if req.OutputSchema != nil {
			payload, _ := json.Marshal(map[string]any{"message": full})
			final.Structured = payload
		}
		m.emit(ctx, req, final, respCh, errCh)
	}()
	return respCh, errCh
}

func (m *MockModel) emit(
	ctx context.Context,
	req Request,
	final Response,
	respCh chan<- Response,
	errCh chan<- error,
) {
	if req.Stream {
		for _, r := range final.Content.Text() {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{
				Partial: true,
				Content: core.NewTextContent("assistant", string(r)),
			}:
			}
		}
	}
	select {
	case <-ctx.Done():
		errCh <- ctx.Err()
	case respCh <- final:
	}
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
