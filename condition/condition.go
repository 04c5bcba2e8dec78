// Package condition implements the condition expression model used to gate
// routes and steps. A condition is a sum type over natural-language text,
// deterministic predicates and ordered lists of either. Text leaves are never
// evaluated in code (they are forwarded verbatim as prompt context for the
// model to judge), while predicate leaves produce a hard, auditable boolean.
// Keeping the two regimes structurally distinct keeps route selection both
// reliable and testable.
package condition

import "github.com/convomesh/convomesh/core"

// Logic selects the aggregation mode for an evaluation.
type Logic int

const (
	// LogicAnd is used for activation ("when") conditions: all predicate
	// leaves must hold. Its neutral default is true.
	LogicAnd Logic = iota
	// LogicOr is used for skip ("skipIf") gating: any predicate leaf
	// suffices. Its neutral default is false.
	LogicOr
)

// String returns a readable name for the logic mode.
func (l Logic) String() string {
	if l == LogicOr {
		return "OR"
	}
	return "AND"
}

// Neutral returns the identity element for the logic mode.
func (l Logic) Neutral() bool { return l == LogicAnd }

// Expr is the closed condition expression sum type. Concrete expressions
// implement the unexported isExpr marker so the evaluator's switch is
// exhaustive by construction.
type Expr interface{ isExpr() }

// Text is a natural-language condition judged by the model, never by code.
type Text string

func (Text) isExpr() {}

// PredicateFunc is a deterministic predicate over the evaluation context.
// Expected failures should be returned as an error; the evaluator treats
// both errors and panics as false.
type PredicateFunc func(ctx *EvalContext) (bool, error)

// Predicate wraps a PredicateFunc with an optional name used in logs.
type Predicate struct {
	Name string
	Fn   PredicateFunc
}

func (Predicate) isExpr() {}

// List is an ordered mix of condition expressions evaluated recursively.
type List []Expr

func (List) isExpr() {}

// Fn is a convenience constructor for a named predicate expression.
func Fn(name string, fn PredicateFunc) Predicate {
	return Predicate{Name: name, Fn: fn}
}

// All groups expressions into a list (reads naturally at call sites).
func All(exprs ...Expr) List { return List(exprs) }

// EvalContext is the read-only view handed to predicate functions. It mirrors
// the template context available to prompts: ambient values, collected data
// and the conversation history with message accessors.
type EvalContext struct {
	Context map[string]any // Ambient per-turn values
	Data    map[string]any // Collected field values
	History []core.Event   // Conversation history (filtered)
}

// NewEvalContext builds an EvalContext from a turn context snapshot.
func NewEvalContext(turnCtx *core.TurnContext) *EvalContext {
	return &EvalContext{
		Context: turnCtx.Values,
		Data:    turnCtx.CollectedData(),
		History: turnCtx.ConversationHistory(),
	}
}

// GetData returns a collected field value and its existence flag.
func (c *EvalContext) GetData(k string) (any, bool) {
	v, ok := c.Data[k]
	return v, ok
}

// HasData reports whether the named field has been collected.
func (c *EvalContext) HasData(k string) bool {
	_, ok := c.Data[k]
	return ok
}

// LastUserMessage returns the text of the most recent user message, or "".
func (c *EvalContext) LastUserMessage() string {
	return c.LastMessageByRole("user")
}

// LastMessageByRole returns the text of the most recent message with the
// given role, or "" when none exists.
func (c *EvalContext) LastMessageByRole(role string) string {
	for i := len(c.History) - 1; i >= 0; i-- {
		ev := c.History[i]
		if ev.Content == nil || ev.Content.Role != role {
			continue
		}
		if text := ev.Content.Text(); text != "" {
			return text
		}
	}
	return ""
}
