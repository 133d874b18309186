// Package command implements Command, the runtime representation of one
// supervised child process: its spawn, process-group placement, output
// reader, stats collector, waiter, and lifecycle event publication
// (spec.md §4.2).
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/event"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
	"github.com/brood-run/brood/internal/sysstat"
)

// State is the command lifecycle state machine named in spec.md §4.2:
// Spawning -> Running -> Exiting -> Exited.
type State int

const (
	Spawning State = iota
	Running
	Exiting
	Exited
)

func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Exiting:
		return "exiting"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// statsInterval is how often the stats collector samples the child.
const statsInterval = 2 * time.Second

// Stats is a snapshot of the child's most recently observed resource usage.
// Either field may be zero-valued if no sample has completed yet.
type Stats struct {
	CPUPercent  float64
	MemoryBytes uint64
}

// Command is one running (or finished) child process plus its background
// machinery. The zero value is not usable; construct with Start.
type Command struct {
	Config config.CommandConfig

	// RunID uniquely identifies this particular (re)start, distinguishing
	// successive Commands that share the same CommandConfig. It is assigned
	// at Start; nothing else in this repository reads it, and the socket
	// renderer's frames do not carry it.
	RunID uuid.UUID

	startTime time.Time

	mu        sync.RWMutex
	state     State
	pid       int
	stopTime  time.Time
	wasKilled bool
	exitCode  int
	hasExited bool
	stats     Stats

	cmd       *exec.Cmd
	statsStop context.CancelFunc
	exitedCh  chan struct{}
}

// Done returns a channel closed once this Command has fully exited (state
// Exited, after both the process wait and the output reader have drained).
func (c *Command) Done() <-chan struct{} {
	return c.exitedCh
}

// Start spawns the child described by cfg, wires it into events/messages,
// and returns once the process has been launched (not once it has exited).
// width sets the COLUMNS environment variable exposed to the child.
func Start(cfg config.CommandConfig, events *fanout.Fanout[event.Event], messages *fanout.Fanout[message.Message], width int) (*Command, error) {
	messages.Put(message.NewInternalMessage(
		fmt.Sprintf("Starting command: %q", cfg.CommandString()),
		message.Info,
	))

	cmd := exec.Command(shellPath(), shellFlag(), cfg.CommandString())
	cmd.Env = append(cmd.Environ(), "FORCE_COLOR=true", fmt.Sprintf("COLUMNS=%d", width))
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("command %q: stdout pipe: %w", cfg.Name, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("command %q: spawn: %w", cfg.Name, err)
	}

	c := &Command{
		Config:    cfg,
		RunID:     uuid.New(),
		state:     Running,
		exitCode:  -1,
		startTime: time.Now(),
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		exitedCh:  make(chan struct{}),
	}

	statsCtx, statsCancel := context.WithCancel(context.Background())
	c.statsStop = statsCancel

	events.Put(event.Event{Command: c, Type: event.Started})

	readerDone := make(chan struct{})
	go c.readOutput(stdout, messages, readerDone)
	go sysstat.Collect(statsCtx, c.pid, statsInterval, c.recordStats)
	go c.wait(events, readerDone)

	return c, nil
}

// readOutput is the "output reader" background task of spec.md §4.2 point 1:
// read combined stdout one line at a time, publishing a non-empty line as a
// CommandMessage, until EOF.
func (c *Command) readOutput(r io.Reader, messages *fanout.Fanout[message.Message], done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		messages.Put(message.NewCommandMessage(line, c.Config))
	}
	// Scanner errors (spec.md §4.2: "reader I/O errors terminate the reader
	// but not the Command") are deliberately not surfaced anywhere further;
	// the waiter below completes normally regardless.
}

// wait is the "waiter" background task of spec.md §4.2 point 3: await exit,
// record stop_time, await the reader's termination, cancel stats, publish
// exactly one Stopped event.
func (c *Command) wait(events *fanout.Fanout[event.Event], readerDone <-chan struct{}) {
	waitErr := c.cmd.Wait()

	c.mu.Lock()
	c.state = Exiting
	c.stopTime = time.Now()
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		c.exitCode = exitErr.ExitCode()
	} else if waitErr == nil {
		c.exitCode = 0
	}
	c.mu.Unlock()

	<-readerDone
	c.statsStop()

	c.mu.Lock()
	c.hasExited = true
	c.state = Exited
	c.mu.Unlock()
	close(c.exitedCh)

	events.Put(event.Event{Command: c, Type: event.Stopped})
}

func (c *Command) recordStats(s sysstat.Sample) {
	c.mu.Lock()
	c.stats = Stats{CPUPercent: s.CPUPercent, MemoryBytes: s.MemoryBytes}
	c.mu.Unlock()
}

// Terminate sends SIGTERM to the child's process group. A no-op if the
// command has already exited.
func (c *Command) Terminate() error {
	return c.signal(false)
}

// Kill sends SIGKILL to the child's process group. A no-op if the command
// has already exited.
func (c *Command) Kill() error {
	return c.signal(true)
}

func (c *Command) signal(forceKill bool) error {
	c.mu.Lock()
	if c.hasExited {
		c.mu.Unlock()
		return nil
	}
	c.wasKilled = true
	pid := c.pid
	c.mu.Unlock()

	var err error
	if forceKill {
		err = killProcessGroup(pid)
	} else {
		err = terminateProcessGroup(pid)
	}
	return err
}

// Name returns the owning CommandConfig's name, satisfying event.Commander.
func (c *Command) Name() string { return c.Config.Name }

// PID returns the child's process ID.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid
}

// ExitCode returns the process's exit code and whether it has exited yet.
func (c *Command) ExitCode() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exitCode, c.hasExited
}

// HasExited reports whether the waiter has observed process exit.
func (c *Command) HasExited() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasExited
}

// WasKilled reports whether Terminate or Kill was called on this Command.
func (c *Command) WasKilled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wasKilled
}

// ElapsedTime returns how long the command has been running (or ran, once
// stopped).
func (c *Command) ElapsedTime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hasExited {
		return c.stopTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// StartTime returns when the process was spawned.
func (c *Command) StartTime() time.Time { return c.startTime }

// Stats returns the most recently sampled resource usage.
func (c *Command) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// State returns the current lifecycle state.
func (c *Command) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
