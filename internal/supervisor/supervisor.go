// Package supervisor implements Monitor (named Supervisor here): the
// orchestration engine that owns the live command set, drives starters,
// reacts to events, enforces the failure mode, and runs the shutdown
// protocol (spec.md §4.5, §4.6).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brood-run/brood/internal/command"
	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/event"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
	"github.com/brood-run/brood/internal/starter"
	"github.com/brood-run/brood/internal/watch"
)

// debounceWindow is how long the file-event handler coalesces bursts of
// filesystem events before acting on them (spec.md §4.4 point 1).
const debounceWindow = time.Second

// shutdownGrace is how long the shutdown protocol waits for a live command
// to exit after SIGTERM before escalating to SIGKILL (spec.md §4.6).
const shutdownGrace = 3 * time.Second

// Supervisor is the runtime Monitor of spec.md §4.5.
type Supervisor struct {
	cfg    config.BroodConfig
	events *fanout.Fanout[event.Event]
	messages *fanout.Fanout[message.Message]
	widths map[string]int

	order        []string
	configByName map[string]config.CommandConfig
	starters     map[string]starter.Starter

	mu           sync.Mutex
	liveCommands map[*command.Command]struct{}
	watchers     []*watch.FileWatcher

	eventsConsumer *fanout.Consumer[event.Event]
	runErr         chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Supervisor for cfg. widths must carry an entry for every
// CommandConfig.Name in cfg.Commands, plus one for every command's
// shutdown-config name (CommandConfig.Name+"-shutdown") if it declares a
// shutdown command — the Executor computes these via the mounted
// Renderer's AvailableProcessWidth before any command starts (spec.md §6,
// §9 "widths snapshot captured before any commands start").
func New(cfg config.BroodConfig, events *fanout.Fanout[event.Event], messages *fanout.Fanout[message.Message], widths map[string]int) *Supervisor {
	s := &Supervisor{
		cfg:          cfg,
		events:       events,
		messages:     messages,
		widths:       widths,
		order:        make([]string, 0, len(cfg.Commands)),
		configByName: make(map[string]config.CommandConfig, len(cfg.Commands)),
		starters:     make(map[string]starter.Starter, len(cfg.Commands)),
		liveCommands: make(map[*command.Command]struct{}),
	}

	for _, c := range cfg.Commands {
		s.order = append(s.order, c.Name)
		s.configByName[c.Name] = c
		s.starters[c.Name] = buildStarter(c)
	}

	s.eventsConsumer = events.Consumer()
	s.runErr = make(chan error, 1)
	s.stopCh = make(chan struct{})
	return s
}

func buildStarter(c config.CommandConfig) starter.Starter {
	switch c.Starter.Kind {
	case config.StarterRestart:
		return starter.NewRestart(c.Name, time.Duration(c.Starter.DelaySeconds*float64(time.Second)))
	case config.StarterWatch:
		return starter.NewWatch()
	case config.StarterAfter:
		return starter.NewAfter(c.Starter.After)
	default:
		return starter.NewOnce()
	}
}

// Run drives the supervisor until ctx is cancelled or a KillOthers condition
// is raised. It returns the first error, which the Executor routes into the
// shutdown protocol (spec.md §4.5, §5).
//
// The event loop itself (eventLoop) runs independently of ctx and keeps
// running after Run returns: Stop's drain phases depend on it continuing to
// process Stopped events and keep the live-command set accurate, which it
// could not do if its Fanout consumer were torn down on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, name := range s.order {
		cfg := s.configByName[name]
		if cfg.Starter.Kind == config.StarterAfter && len(cfg.Starter.After) > 0 {
			continue
		}
		s.starters[name].WasStarted()
		s.startCommand(cfg)
	}

	go s.eventLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.handleFileEvents(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return ErrCancelled
		case err := <-s.runErr:
			return err
		}
	})

	return g.Wait()
}

func (s *Supervisor) startCommand(cfg config.CommandConfig) {
	width := s.widths[cfg.Name]
	if _, err := command.Start(cfg, s.events, s.messages, width); err != nil {
		// SpawnFailure (SPEC_FULL.md §4): fatal to this attempt, not to the
		// supervisor. The command is never added to the live set. Its
		// starter's WasStarted has already been called by the time this
		// runs, and no Stopped event follows, so the attempt is not retried.
		s.messages.Put(message.NewInternalMessage(
			fmt.Sprintf("command %q failed to start: %v", cfg.Name, err),
			message.Error,
		))
	}
}

// eventLoop is the event handler of spec.md §4.5. It runs for the lifetime
// of the Supervisor, independent of Run's ctx, so that Stop's drain phases
// (which happen after Run has already returned) keep seeing an accurate
// live-command set. Any error processEvent raises (a KillOthersError) is
// forwarded to runErr on a best-effort basis; once Run has collected the
// first one there is nothing left to deliver it to, and the loop is left
// running only to keep bookkeeping current during shutdown.
func (s *Supervisor) eventLoop() {
	for {
		e, ok := s.eventsConsumer.Next()
		if !ok {
			return
		}
		if err := s.processEvent(e); err != nil {
			select {
			case s.runErr <- err:
			default:
			}
		}
	}
}

// drainEvents is the drain-wait phase of spec.md §4.6 (phases 2 and 4):
// block until the live-command set is empty AND the events consumer has no
// pending items left to process (original_source/brood/monitor.py:86 waits
// on both `len(self.commands)==0` and `events_consumer.qsize()==0`). The
// second condition matters because Command.Start publishes its Started
// event synchronously before returning, while liveCommands is only updated
// once eventLoop later dequeues and processes that event — without it, a
// drain immediately following startShutdownCommands could observe an empty
// live set before the shutdown command's Started event has ever been
// dequeued, and return early.
func (s *Supervisor) drainEvents() {
	for {
		s.mu.Lock()
		empty := len(s.liveCommands) == 0
		s.mu.Unlock()
		if empty && s.eventsConsumer.Pending() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *Supervisor) processEvent(e event.Event) error {
	s.messages.Put(message.NewInternalMessage(
		fmt.Sprintf("got event for command %q of type %s", e.Command.Name(), e.Type),
		message.Debug,
	))

	if e.Type == event.Stopped {
		if cmd, ok := e.Command.(*command.Command); ok {
			s.mu.Lock()
			_, wasLive := s.liveCommands[cmd]
			delete(s.liveCommands, cmd)
			s.mu.Unlock()

			if !wasLive {
				// A repeated Stopped for the same Command is tolerated as a
				// no-op (spec.md §4.5) — typically seen during shutdown
				// drains when the Stopped event is re-delivered.
				return nil
			}

			code, _ := cmd.ExitCode()
			s.messages.Put(message.NewInternalMessage(
				fmt.Sprintf("command exited with code %d: %q", code, cmd.Config.CommandString()),
				message.Info,
			))

			if s.cfg.FailureMode == config.KillOthers && code != 0 && !cmd.WasKilled() {
				return &KillOthersError{Command: cmd}
			}
		}
	} else if cmd, ok := e.Command.(*command.Command); ok {
		s.mu.Lock()
		s.liveCommands[cmd] = struct{}{}
		s.mu.Unlock()
	}

	for _, name := range s.order {
		st := s.starters[name]
		st.HandleEvent(e)

		cfg := s.configByName[name]
		if st.CanStart() && !s.hasLive(name) {
			if s.isStopping() {
				// Stop has begun: don't schedule ordinary (re)starts. Only
				// startShutdownCommands, called directly by Stop itself, may
				// still start a command past this point.
				continue
			}
			st.WasStarted()
			if delay := st.Delay(); delay > 0 {
				go func(cfg config.CommandConfig, d time.Duration) {
					select {
					case <-s.stopCh:
						return
					case <-time.After(d):
					}
					if s.isStopping() {
						return
					}
					s.startCommand(cfg)
				}(cfg, delay)
			} else {
				s.startCommand(cfg)
			}
		}
	}

	return nil
}

// isStopping reports whether Stop has been called. Checked before
// scheduling any ordinary (re)start so a command that exits right at
// shutdown cannot be respawned after terminateAll's SIGTERM window has
// already closed (spec.md §4.6(a): no surviving child processes).
func (s *Supervisor) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) hasLive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cmd := range s.liveCommands {
		if cmd.Config.Name == name {
			return true
		}
	}
	return false
}

func (s *Supervisor) liveSnapshot() []*command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*command.Command, 0, len(s.liveCommands))
	for cmd := range s.liveCommands {
		out = append(out, cmd)
	}
	return out
}

// handleFileEvents is the file-event handler of spec.md §4.4/§4.5: start
// one FileWatcher per Watch command, then coalesce-dedupe-terminate-restart
// on every debounce window. Exits immediately if no command uses Watch.
func (s *Supervisor) handleFileEvents(ctx context.Context) error {
	queue := make(chan watch.WatchEvent, 256)

	var watchers []*watch.FileWatcher
	for _, name := range s.order {
		cfg := s.configByName[name]
		if cfg.Starter.Kind != config.StarterWatch {
			continue
		}
		fw := watch.New(cfg, queue)
		if err := fw.Start(); err != nil {
			s.messages.Put(message.NewInternalMessage(
				fmt.Sprintf("watcher for %q failed to start: %v", cfg.Name, err),
				message.Error,
			))
			continue
		}
		watchers = append(watchers, fw)
	}

	s.mu.Lock()
	s.watchers = watchers
	s.mu.Unlock()

	if len(watchers) == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case first := <-queue:
			batch := map[string]watch.WatchEvent{first.CommandConfig.Name: first}
			timer := time.NewTimer(debounceWindow)

		collect:
			for {
				select {
				case we := <-queue:
					batch[we.CommandConfig.Name] = we
				case <-timer.C:
					break collect
				case <-ctx.Done():
					timer.Stop()
					return nil
				}
			}

			s.applyWatchBatch(batch)
		}
	}
}

func (s *Supervisor) applyWatchBatch(batch map[string]watch.WatchEvent) {
	for name, we := range batch {
		cfg := we.CommandConfig

		if !cfg.Starter.AllowMultiple {
			s.mu.Lock()
			var stale []*command.Command
			for cmd := range s.liveCommands {
				if cmd.Config.Name == name {
					stale = append(stale, cmd)
				}
			}
			s.mu.Unlock()
			for _, cmd := range stale {
				_ = cmd.Terminate()
			}
		}

		s.messages.Put(message.NewInternalMessage(
			fmt.Sprintf("path %s was %s, starting command: %q", we.Raw.Path, we.Raw.Type, cfg.CommandString()),
			message.Info,
		))
		s.startCommand(cfg)
	}
}

// Stop runs the four-phase shutdown protocol of spec.md §4.6: terminate,
// drain-wait, run shutdown commands, drain-wait. ctx being cancelled a
// second time (e.g. a repeated interrupt) escalates any still-live command
// straight to SIGKILL instead of waiting out the grace window.
//
// The very first thing Stop does is mark the Supervisor as stopping, which
// blocks any ordinary (re)start scheduled by processEvent from now on —
// including one already waiting out a Restart delay — so a command that
// exits in the narrow window right before/at cancellation cannot spawn a
// fresh, never-terminated child after terminateAll has already run.
func (s *Supervisor) Stop(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.terminateAll()
	s.waitAll(ctx)
	s.drainEvents()

	s.startShutdownCommands()
	s.waitAll(ctx)
	s.drainEvents()
}

func (s *Supervisor) terminateAll() {
	for _, cmd := range s.liveSnapshot() {
		_ = cmd.Terminate()
	}

	s.mu.Lock()
	watchers := s.watchers
	s.mu.Unlock()
	for _, w := range watchers {
		w.Stop()
	}
}

func (s *Supervisor) startShutdownCommands() {
	for _, name := range s.order {
		cfg := s.configByName[name]
		shutdownCfg, ok := cfg.ShutdownConfig()
		if !ok {
			continue
		}
		s.startCommand(shutdownCfg)
	}
}

func (s *Supervisor) waitAll(ctx context.Context) {
	escalated := false
	for {
		live := s.liveSnapshot()
		if len(live) == 0 {
			return
		}

		doneCh := make(chan struct{})
		go func(cs []*command.Command) {
			for _, c := range cs {
				<-c.Done()
			}
			close(doneCh)
		}(live)

		if escalated {
			<-doneCh
			return
		}

		select {
		case <-doneCh:
			return
		case <-time.After(shutdownGrace):
			escalated = true
			for _, c := range live {
				_ = c.Kill()
			}
		case <-ctx.Done():
			escalated = true
			for _, c := range live {
				_ = c.Kill()
			}
		}
	}
}
