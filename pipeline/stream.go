package pipeline

import (
	"context"

	"github.com/convomesh/convomesh/model"
)

// Chunk is one streamed increment of a turn. Intermediate chunks carry a text
// delta plus the accumulated text so far; the final chunk carries the
// completed Result (message, tool results, updated session) or the turn
// error. Exactly one chunk has Done set.
type Chunk struct {
	Delta       string
	Accumulated string
	Done        bool
	Result      *Result
	Err         error
}

// RespondStream runs one turn, yielding deltas as the model produces them.
// Cancellation is cooperative through ctx: it is checked at every yield and
// between tool-loop iterations, and does not roll back session data already
// collected before the cancellation.
func (p *Pipeline) RespondStream(ctx context.Context, sessionID, userMessage string) <-chan Chunk {
	out := make(chan Chunk, 16)

	go func() {
		defer close(out)
		var accumulated string

		emit := func(r model.Response) {
			delta := r.Content.Text()
			if delta == "" {
				return
			}
			accumulated += delta
			select {
			case <-ctx.Done():
			case out <- Chunk{Delta: delta, Accumulated: accumulated}:
			}
		}

		res, err := p.respond(ctx, sessionID, userMessage, emit)
		final := Chunk{Done: true, Result: res, Err: err}
		if res != nil {
			final.Accumulated = res.Message
		}
		select {
		case <-ctx.Done():
			// Deliver the terminal chunk if the consumer is still there.
			select {
			case out <- final:
			default:
			}
		case out <- final:
		}
	}()
	return out
}
