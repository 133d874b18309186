package render

import (
	"fmt"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// New builds the Renderer selected by cfg.Type (spec.md §6: "null" | "log" |
// "socket").
func New(messages *fanout.Fanout[message.Message], cfg config.RendererConfig) (Renderer, error) {
	switch cfg.Type {
	case "", "null":
		return NewNull(messages), nil
	case "log":
		return NewLog(messages, cfg), nil
	case "socket":
		if cfg.SocketPath == "" {
			return nil, fmt.Errorf("render: socket renderer requires socket_path")
		}
		return NewSocket(messages, cfg.SocketPath), nil
	default:
		return nil, fmt.Errorf("render: unknown renderer type %q", cfg.Type)
	}
}
