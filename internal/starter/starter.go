// Package starter implements the four per-command launch policies named in
// spec.md §3/§4.3: Once, Restart, Watch and After. Each is a tagged variant
// of the shared Starter interface, holding its own mutable state.
package starter

import (
	"time"

	"github.com/brood-run/brood/internal/event"
)

// Starter decides when a command may (re)start, reacting to every Event the
// Supervisor observes (not just events for the command it owns — After
// depends on peer commands).
type Starter interface {
	// CanStart reports whether the owning command is currently eligible to
	// be (re)launched. The Supervisor additionally requires that no command
	// with this config is currently live before actually scheduling a start.
	CanStart() bool
	// WasStarted is called immediately before the Supervisor schedules a
	// start, so that CanStart goes false until the next eligibility window.
	WasStarted()
	// HandleEvent is delivered every Event the Supervisor observes, in
	// order, regardless of which command it names.
	HandleEvent(e event.Event)
	// Delay is the wait before the Supervisor actually calls start_command,
	// once CanStart/WasStarted have fired. Zero for every variant but Restart.
	Delay() time.Duration
}

// Once starts exactly one time and never again.
type Once struct {
	started bool
}

func NewOnce() *Once { return &Once{} }

func (o *Once) CanStart() bool         { return !o.started }
func (o *Once) WasStarted()            { o.started = true }
func (o *Once) HandleEvent(event.Event) {}
func (o *Once) Delay() time.Duration   { return 0 }

// Restart relaunches the command every time it stops, waiting Delay between
// the stop and the next start. It is identical to Once in eligibility
// shape, except handling its own command's Stopped event resets eligibility
// so the next exit can trigger another restart. Per SPEC_FULL.md §4, a
// restart is suppressed if the command's last Stopped event carried
// WasKilled=true (e.g. a KillOthers-initiated termination) — suppression is
// lifted the next time the command is actually (re)started.
type Restart struct {
	name    string
	delay   time.Duration
	started bool
	suppress bool
}

func NewRestart(name string, delay time.Duration) *Restart {
	return &Restart{name: name, delay: delay}
}

func (r *Restart) CanStart() bool {
	return !r.started && !r.suppress
}

func (r *Restart) WasStarted() {
	r.started = true
	r.suppress = false
}

func (r *Restart) HandleEvent(e event.Event) {
	if e.Command.Name() != r.name || e.Type != event.Stopped {
		return
	}
	r.started = false
	if e.Command.WasKilled() {
		r.suppress = true
	}
}

func (r *Restart) Delay() time.Duration { return r.delay }

// Watch never starts its own command through the Starter/event-eligibility
// path; transitions are driven entirely by the FileWatcher (internal/watch),
// which calls the Supervisor's start path directly.
type Watch struct{}

func NewWatch() *Watch { return &Watch{} }

func (w *Watch) CanStart() bool          { return false }
func (w *Watch) WasStarted()             {}
func (w *Watch) HandleEvent(event.Event) {}
func (w *Watch) Delay() time.Duration    { return 0 }

// After starts once every name in WaitingFor has produced a Stopped event
// with exit code 0 since the last WasStarted. An empty WaitingFor set means
// it is eligible immediately (spec.md §4.3 edge case: starts exactly once
// at boot).
type After struct {
	waitingFor map[string]struct{}
	done       map[string]struct{}
	started    bool
}

func NewAfter(waitingFor []string) *After {
	set := make(map[string]struct{}, len(waitingFor))
	for _, name := range waitingFor {
		set[name] = struct{}{}
	}
	return &After{waitingFor: set, done: make(map[string]struct{})}
}

func (a *After) CanStart() bool {
	if len(a.waitingFor) == 0 {
		return !a.started
	}
	for name := range a.waitingFor {
		if _, ok := a.done[name]; !ok {
			return false
		}
	}
	return true
}

func (a *After) WasStarted() {
	a.started = true
	a.done = make(map[string]struct{})
}

func (a *After) HandleEvent(e event.Event) {
	if e.Type != event.Stopped {
		return
	}
	if _, waitedOn := a.waitingFor[e.Command.Name()]; !waitedOn {
		return
	}
	if code, ok := e.Command.ExitCode(); ok && code == 0 {
		a.done[e.Command.Name()] = struct{}{}
	}
}

func (a *After) Delay() time.Duration { return 0 }
