package render

import (
	"context"

	"golang.org/x/term"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// Null discards every message. It still has to drain its consumer so a
// slow Fanout subscriber never holds anything back from other consumers
// (spec.md §4.1); it is what tests construct an Executor with.
type Null struct {
	base
}

func NewNull(messages *fanout.Fanout[message.Message]) *Null {
	return &Null{base: newBase(messages)}
}

func (n *Null) AvailableProcessWidth(config.CommandConfig) int {
	if w, _, err := term.GetSize(0); err == nil && w > 0 {
		return w
	}
	return 80
}

func (n *Null) Mount(ctx context.Context) error { return nil }
func (n *Null) Unmount()                        {}

func (n *Null) Run(ctx context.Context, drain bool) error {
	return n.base.run(ctx, drain, func(message.Message) {})
}
