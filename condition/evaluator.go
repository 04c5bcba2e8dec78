package condition

import (
	"fmt"

	"github.com/convomesh/convomesh/logging"
)

// Result is the outcome of evaluating a condition expression. Programmatic
// aggregates only predicate leaves; text leaves are collected into AIContext
// in depth-first appearance order for the model prompt. HasPredicates
// distinguishes a genuine programmatic verdict from the logic's neutral
// default.
type Result struct {
	Programmatic  bool
	AIContext     []string
	HasPredicates bool
}

// Evaluator walks condition expressions recursively, reconciling the
// deterministic and natural-language regimes into one result. A broken
// predicate (error or panic) is logged and treated as false so it can never
// hang or crash a turn.
type Evaluator struct {
	logger logging.Logger
}

// NewEvaluator constructs an Evaluator. A nil logger falls back to NoOp.
func NewEvaluator(logger logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Evaluator{logger: logger}
}

// Evaluate reduces expr under the given logic. A nil expression yields the
// logic's neutral default with no AI context.
func (e *Evaluator) Evaluate(expr Expr, logic Logic, ctx *EvalContext) Result {
	res := Result{Programmatic: logic.Neutral()}
	if expr == nil {
		return res
	}
	e.walk(expr, logic, ctx, &res)
	if !res.HasPredicates {
		res.Programmatic = logic.Neutral()
	}
	return res
}

// walk recurses over the expression tree accumulating into res.
func (e *Evaluator) walk(expr Expr, logic Logic, ctx *EvalContext, res *Result) {
	switch v := expr.(type) {
	case Text:
		if v != "" {
			res.AIContext = append(res.AIContext, string(v))
		}
	case Predicate:
		ok := e.callPredicate(v, ctx)
		if !res.HasPredicates {
			res.HasPredicates = true
			res.Programmatic = ok
			return
		}
		if logic == LogicAnd {
			res.Programmatic = res.Programmatic && ok
		} else {
			res.Programmatic = res.Programmatic || ok
		}
	case List:
		for _, child := range v {
			e.walk(child, logic, ctx, res)
		}
	}
}

// callPredicate invokes a predicate failure-safe: errors and panics are
// logged as warnings and count as false.
func (e *Evaluator) callPredicate(p Predicate, ctx *EvalContext) (ok bool) {
	name := p.Name
	if name == "" {
		name = "anonymous"
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("condition.predicate.panic", "predicate", name, "recover", fmt.Sprintf("%v", r))
			ok = false
		}
	}()
	if p.Fn == nil {
		e.logger.Warn("condition.predicate.nil", "predicate", name)
		return false
	}
	result, err := p.Fn(ctx)
	if err != nil {
		e.logger.Warn("condition.predicate.error", "predicate", name, "error", err.Error())
		return false
	}
	return result
}
