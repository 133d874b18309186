// Package executor is the composition root: it wires the two Fanouts, a
// Renderer, and the Supervisor together and drives the run/shutdown
// sequence described in spec.md §5 and §9 (original_source/brood/executor.py).
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/event"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
	"github.com/brood-run/brood/internal/render"
	"github.com/brood-run/brood/internal/supervisor"
)

// shutdownPollInterval is how long Run waits between re-issuing a drain
// Run call on the renderer while Supervisor.Stop is still in flight
// (executor.py's `await sleep(0.001)` between successive drain_renderer
// tasks).
const shutdownPollInterval = time.Millisecond

// Executor owns a run's Fanouts, Renderer and Supervisor and drives the
// whole lifecycle: mount the renderer, run supervisor and renderer
// concurrently, and on any exit run the four-phase shutdown protocol while
// keeping the renderer draining so shutdown output is not lost.
type Executor struct {
	cfg      config.BroodConfig
	renderer render.Renderer
	events   *fanout.Fanout[event.Event]
	messages *fanout.Fanout[message.Message]
	super    *supervisor.Supervisor
}

// New constructs an Executor, building its Renderer via newRenderer against
// the Executor's own message Fanout (the Renderer must consume from the
// same Fanout the Supervisor publishes to — the caller cannot construct one
// before the other exists). It computes the widths snapshot (one entry per
// command, plus one per declared shutdown command) via the renderer's
// AvailableProcessWidth before any command starts (spec.md §9).
func New(cfg config.BroodConfig, newRenderer func(*fanout.Fanout[message.Message]) (render.Renderer, error)) (*Executor, error) {
	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()

	renderer, err := newRenderer(messages)
	if err != nil {
		return nil, fmt.Errorf("executor: construct renderer: %w", err)
	}

	widths := make(map[string]int, len(cfg.Commands)*2)
	for _, c := range cfg.Commands {
		widths[c.Name] = renderer.AvailableProcessWidth(c)
		if shutdownCfg, ok := c.ShutdownConfig(); ok {
			widths[shutdownCfg.Name] = renderer.AvailableProcessWidth(shutdownCfg)
		}
	}

	return &Executor{
		cfg:      cfg,
		renderer: renderer,
		events:   events,
		messages: messages,
		super:    supervisor.New(cfg, events, messages, widths),
	}, nil
}

// Run mounts the renderer and runs it concurrently with the supervisor
// until ctx is cancelled or either one fails, then always runs the
// shutdown protocol before returning. The returned error is nil on a clean
// ctx cancellation; any other reason (KillOthers, a render error) is
// returned after shutdown has completed.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.renderer.Mount(ctx); err != nil {
		return fmt.Errorf("executor: mount renderer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.super.Run(gctx) })
	g.Go(func() error { return e.renderer.Run(gctx, false) })

	runErr := g.Wait()
	e.announceShutdownReason(runErr)
	e.shutdown(context.Background())

	if errors.Is(runErr, supervisor.ErrCancelled) || errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (e *Executor) announceShutdownReason(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, supervisor.ErrCancelled), errors.Is(err, context.Canceled):
		e.messages.Put(message.NewInternalMessage("Shutting down due to: keyboard interrupt", message.Info))
	case isKillOthers(err):
		e.messages.Put(message.NewInternalMessage("Shutting down due to: command failing", message.Info))
	default:
		e.messages.Put(message.NewInternalMessage(
			fmt.Sprintf("Shutting down due to internal error.\n%v", err),
			message.Error,
		))
	}
}

func isKillOthers(err error) bool {
	var ko *supervisor.KillOthersError
	return errors.As(err, &ko)
}

// shutdown runs Supervisor.Stop while repeatedly re-issuing drain Run calls
// on the renderer, so output produced during shutdown (a command's last
// lines, the declared shutdown commands) is not lost — matching
// executor.py's __aexit__ race between stop_monitor and drain_renderer.
func (e *Executor) shutdown(ctx context.Context) {
	stopDone := make(chan struct{})
	go func() {
		e.super.Stop(ctx)
		close(stopDone)
	}()

	for {
		e.renderer.Run(ctx, true)

		select {
		case <-stopDone:
			e.renderer.Run(ctx, true)
			e.renderer.Unmount()
			return
		default:
			time.Sleep(shutdownPollInterval)
		}
	}
}
