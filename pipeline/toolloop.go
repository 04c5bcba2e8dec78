package pipeline

import (
	"fmt"

	"github.com/convomesh/convomesh/core"
	"github.com/convomesh/convomesh/model"
	"github.com/convomesh/convomesh/tool"
)

// DefaultMaxToolLoops bounds the follow-up loop. Providers have been observed
// returning spurious tool calls indefinitely; the cap turns that into a
// logged warning instead of a hung turn.
const DefaultMaxToolLoops = 5

// loopOutcome is the tool loop's result: the reply to surface, every tool
// result produced, the transcript events recorded along the way, and whether
// the loop cap was hit with calls still pending.
type loopOutcome struct {
	reply     *model.Reply
	results   []tool.Result
	events    []core.Event
	exhausted bool
}

// runToolLoop executes the reply's tool calls and re-invokes the model with
// the results until it stops requesting tools or the loop cap is reached.
// Calls within a round run sequentially so their context/data mutations apply
// in a deterministic order. Failed results are logged and excluded from the
// follow-up transcript; cancellation is checked between rounds.
func (p *Pipeline) runToolLoop(
	turnCtx *core.TurnContext,
	req model.Request,
	reply *model.Reply,
	emit func(model.Response),
) (*loopOutcome, error) {
	out := &loopOutcome{reply: reply}
	contents := req.Contents

	for round := 0; len(out.reply.ToolCalls) > 0; round++ {
		if round >= p.opts.MaxToolLoops {
			turnCtx.LogWarn("tool loop cap reached, returning last reply",
				"rounds", round, "pending_calls", len(out.reply.ToolCalls))
			out.exhausted = true
			return out, nil
		}
		if err := turnCtx.Err(); err != nil {
			return out, wrapPhase(PhaseToolExecution, err)
		}

		calls, responses := p.executeRound(turnCtx, out)

		// The follow-up transcript carries the assistant's calls and only the
		// successful results; a failed tool simply contributes nothing.
		contents = append(contents,
			core.Content{Role: "assistant", Parts: calls},
			core.Content{Role: "tool", Parts: responses},
		)
		followUp := req
		followUp.Contents = contents

		next, err := p.generate(turnCtx, followUp, emit)
		if err != nil {
			return out, wrapPhase(PhaseToolExecution, err)
		}
		parsed, err := p.parseReply(next)
		if err != nil {
			return out, wrapPhase(PhaseToolExecution,
				fmt.Errorf("malformed follow-up reply: %w", err))
		}
		out.reply = parsed
	}
	return out, nil
}

// executeRound runs every pending call sequentially, applies the resulting
// mutation instructions, and returns the transcript parts for the follow-up.
func (p *Pipeline) executeRound(
	turnCtx *core.TurnContext,
	out *loopOutcome,
) (calls, responses []core.Part) {
	for _, call := range out.reply.ToolCalls {
		if call.ID == "" {
			call.ID = core.NewID()
		}
		calls = append(calls, core.FunctionCallPart{FunctionCall: call})
		out.events = append(out.events,
			core.NewFunctionCallEvent("assistant", call.Name, call.Arguments))

		res := p.executor.Execute(turnCtx, p.registry, call)
		p.metrics.RecordToolCall(res.Tool, res.Success, res.Duration)
		out.results = append(out.results, res)
		out.events = append(out.events, res.ResponseEvent("tool"))

		if !res.Success {
			turnCtx.LogWarn("tool call failed, continuing turn",
				"tool", res.Tool, "error", res.Error)
			continue
		}
		p.applyResult(turnCtx, res)
		responses = append(responses, core.FunctionResponsePart{
			FunctionResponse: core.FunctionResponse{
				ID:       res.CallID,
				Name:     res.Tool,
				Response: res.Data,
			},
		})
	}
	return calls, responses
}

// applyResult is the single mutation point for tool outcomes: staged data,
// turn-scoped context values, and requested route transitions all land here.
func (p *Pipeline) applyResult(turnCtx *core.TurnContext, res tool.Result) {
	if len(res.DataUpdate) > 0 {
		turnCtx.StageDataDelta(res.DataUpdate)
	}
	for k, v := range res.ContextUpdate {
		turnCtx.SetValue(k, v)
	}
	if res.Transition != nil {
		turnCtx.Session.SetPendingTransition(core.PendingTransition{
			TargetRouteID: *res.Transition,
			Condition:     fmt.Sprintf("tool %s requested handoff", res.Tool),
			Reason:        core.ReasonToolRequest,
		})
		turnCtx.LogInfo("tool requested route transition",
			"tool", res.Tool, "target_route", *res.Transition)
	}
}
