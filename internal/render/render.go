// Package render implements the Renderer contract of spec.md §6: the thing
// that turns the message Fanout into visible output. Three variants are
// provided: a discarding Null renderer for tests, a colorized Log renderer
// for terminals, and a length-prefixed JSON Socket renderer for external
// consumers.
package render

import (
	"context"
	"time"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// Renderer consumes internal and command messages and presents them however
// the implementation sees fit. AvailableProcessWidth is called once per
// command, before any command starts, so the Executor can hand child
// processes a stable COLUMNS value (spec.md §9).
type Renderer interface {
	AvailableProcessWidth(cfg config.CommandConfig) int
	Mount(ctx context.Context) error
	Unmount()
	Run(ctx context.Context, drain bool) error
}

// pollInterval is how often Run rechecks its consumer for newly-arrived
// messages when none is queued. Run is called repeatedly over a renderer's
// lifetime — once in normal mode racing the supervisor, then several times
// in drain mode during shutdown (spec.md §9) — so it always polls rather
// than blocking in Consumer.Next, which has no way to be interrupted by ctx
// without permanently closing the consumer and losing later messages.
const pollInterval = 10 * time.Millisecond

// base holds the plumbing every Renderer variant needs: its own Fanout
// consumer, obtained once at construction so Run can be called repeatedly
// without losing messages.
type base struct {
	messages         *fanout.Fanout[message.Message]
	messagesConsumer *fanout.Consumer[message.Message]
}

func newBase(messages *fanout.Fanout[message.Message]) base {
	return base{messages: messages, messagesConsumer: messages.Consumer()}
}

// run drives handle against the consumer until ctx is done (drain=false) or
// the consumer has nothing left to offer (drain=true).
func (b *base) run(ctx context.Context, drain bool, handle func(message.Message)) error {
	for {
		m, ok := b.messagesConsumer.TryNext()
		if ok {
			handle(m)
			continue
		}
		if drain {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}
