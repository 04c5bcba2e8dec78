// Package routing selects the active route and candidate step for a turn.
// Route gating is deterministic (skip and activation predicates); choosing
// between surviving routes is delegated to a Scorer, usually model-backed.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/logging"
	"github.com/convomesh/convomesh/model"
)

// Candidate is a route that survived gating, paired with the natural-language
// activation conditions the scorer should judge.
type Candidate struct {
	ID           string
	Title        string
	Description  string
	AIConditions []string
}

// Score is one scorer verdict. Confidence is in [0, 1].
type Score struct {
	RouteID    string
	Confidence float64
}

// ScoreRequest carries everything a scorer may consult.
type ScoreRequest struct {
	Candidates      []Candidate
	History         []core.Event
	Data            map[string]any
	LastUserMessage string
}

// Scorer ranks gated candidates. Implementations must return a score per
// candidate; missing candidates are treated as confidence zero.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) ([]Score, error)
}

// ModelScorer asks a model to rate how well each candidate matches the
// conversation, constrained to a JSON verdict per route.
type ModelScorer struct {
	model  model.Model
	logger logging.Logger
}

// NewModelScorer wires a scorer to the given model.
func NewModelScorer(m model.Model, logger logging.Logger) *ModelScorer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ModelScorer{model: m, logger: logger}
}

var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scores": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"route_id":   map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
				"required": []string{"route_id", "confidence"},
			},
		},
	},
	"required": []string{"scores"},
}

// Score implements Scorer.
func (s *ModelScorer) Score(ctx context.Context, req ScoreRequest) ([]Score, error) {
	prompt := buildScorePrompt(req)
	respCh, errCh := s.model.Generate(ctx, model.Request{
		Instructions: "You route conversations. Rate how well each route matches the user's intent right now.",
		Contents:     []core.Content{core.NewTextContent("user", prompt)},
		OutputSchema: scoreSchema,
	})

	var final model.Response
	for r := range respCh {
		if !r.Partial {
			final = r
		}
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("route scoring failed: %w", err)
	}

	payload := final.Structured
	if payload == nil {
		payload = json.RawMessage(final.Content.Text())
	}
	return parseScores(payload)
}

// parseScores decodes the scorer verdict, clamping confidences to [0, 1].
func parseScores(payload []byte) ([]Score, error) {
	parsed := gjson.GetBytes(payload, "scores")
	if !parsed.Exists() || !parsed.IsArray() {
		return nil, fmt.Errorf("scorer returned no scores array")
	}
	var scores []Score
	parsed.ForEach(func(_, item gjson.Result) bool {
		conf := item.Get("confidence").Float()
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		scores = append(scores, Score{
			RouteID:    item.Get("route_id").String(),
			Confidence: conf,
		})
		return true
	})
	return scores, nil
}

func buildScorePrompt(req ScoreRequest) string {
	var b strings.Builder
	b.WriteString("Routes:\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n", c.ID, c.Title)
		if c.Description != "" {
			fmt.Fprintf(&b, "  description: %s\n", c.Description)
		}
		for _, cond := range c.AIConditions {
			fmt.Fprintf(&b, "  condition: %s\n", cond)
		}
	}
	if len(req.Data) > 0 {
		if data, err := json.Marshal(req.Data); err == nil {
			fmt.Fprintf(&b, "\nCollected data so far: %s\n", data)
		}
	}
	if req.LastUserMessage != "" {
		fmt.Fprintf(&b, "\nLatest user message: %s\n", req.LastUserMessage)
	}
	b.WriteString("\nReturn a confidence between 0 and 1 for every route id.")
	return b.String()
}

// StaticScorer returns preconfigured confidences; used in tests and as a
// deterministic stand-in when no model is available.
type StaticScorer struct {
	Confidences map[string]float64
}

// Score implements Scorer.
func (s StaticScorer) Score(_ context.Context, req ScoreRequest) ([]Score, error) {
	scores := make([]Score, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		scores = append(scores, Score{RouteID: c.ID, Confidence: s.Confidences[c.ID]})
	}
	return scores, nil
}
