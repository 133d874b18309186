package supervisor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/event"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

func loadConfig(t *testing.T, raw string) config.BroodConfig {
	t.Helper()
	var cfg config.BroodConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	return cfg
}

func widthsFor(cfg config.BroodConfig) map[string]int {
	widths := make(map[string]int)
	for _, c := range cfg.Commands {
		widths[c.Name] = 80
		if sc, ok := c.ShutdownConfig(); ok {
			widths[sc.Name] = 80
		}
	}
	return widths
}

func TestSupervisorOnceSuccess(t *testing.T) {
	cfg := loadConfig(t, `{
		"failure_mode": "continue",
		"commands": [{"name":"a","command":"echo hi","starter":{"type":"once"}}]
	}`)

	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()
	messagesConsumer := messages.Consumer()

	s := New(cfg, events, messages, widthsFor(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	var started, stopped int
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Started/Stopped pair")
		default:
		}
		e, ok := eventsConsumer.Next()
		if !ok {
			t.Fatal("events consumer closed unexpectedly")
		}
		switch e.Type {
		case event.Started:
			started++
		case event.Stopped:
			stopped++
			break loop
		}
	}
	if started != 1 || stopped != 1 {
		t.Fatalf("started=%d stopped=%d, want 1,1", started, stopped)
	}

	var sawHi bool
	for {
		m, ok := messagesConsumer.TryNext()
		if !ok {
			break
		}
		if cm, isCmdMsg := m.(message.CommandMessage); isCmdMsg && cm.Text() == "hi" {
			sawHi = true
		}
	}
	if !sawHi {
		t.Fatal("expected a CommandMessage \"hi\"")
	}

	cancel()
	select {
	case <-runErr:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSupervisorKillOthers(t *testing.T) {
	cfg := loadConfig(t, `{
		"failure_mode": "kill_others",
		"commands": [
			{"name":"a","command":"sleep 30","starter":{"type":"once"}},
			{"name":"b","command":"exit 7","starter":{"type":"once"}}
		]
	}`)

	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()

	s := New(cfg, events, messages, widthsFor(cfg))

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	var err error
	deadline := time.After(5 * time.Second)
	select {
	case err = <-runErr:
	case <-deadline:
		t.Fatal("timed out waiting for Run to return")
	}

	ko, ok := err.(*KillOthersError)
	if !ok {
		t.Fatalf("expected *KillOthersError, got %v (%T)", err, err)
	}
	if ko.Command.Name() != "b" {
		t.Fatalf("expected KillOthers triggered by %q, got %q", "b", ko.Command.Name())
	}

	s.Stop(context.Background())

	_ = eventsConsumer // consumed implicitly via s's own internal consumer
}

func TestSupervisorAfterWaitsOnPeers(t *testing.T) {
	cfg := loadConfig(t, `{
		"failure_mode": "continue",
		"commands": [
			{"name":"a","command":"exit 0","starter":{"type":"once"}},
			{"name":"b","command":"exit 0","starter":{"type":"once"}},
			{"name":"c","command":"echo done","starter":{"type":"after","after":["a","b"]}}
		]
	}`)

	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()
	messagesConsumer := messages.Consumer()

	s := New(cfg, events, messages, widthsFor(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	var cStopped bool
	deadline := time.After(5 * time.Second)
	for !cStopped {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for c to stop")
		default:
		}
		e, ok := eventsConsumer.Next()
		if !ok {
			t.Fatal("events consumer closed unexpectedly")
		}
		if e.Command.Name() == "c" && e.Type == event.Stopped {
			cStopped = true
		}
	}

	var doneCount int
	for {
		m, ok := messagesConsumer.TryNext()
		if !ok {
			break
		}
		if cm, isCmdMsg := m.(message.CommandMessage); isCmdMsg && cm.Text() == "done" {
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Fatalf("expected exactly one CommandMessage \"done\" from c, got %d", doneCount)
	}
}

func TestSupervisorRestartNotRespawnedAfterStop(t *testing.T) {
	cfg := loadConfig(t, `{
		"failure_mode": "continue",
		"commands": [
			{"name":"a","command":"exit 0","starter":{"type":"restart","delay":0.2}}
		]
	}`)

	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()

	s := New(cfg, events, messages, widthsFor(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	var startedCount int
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for first Stopped(a)")
		default:
		}
		e, ok := eventsConsumer.Next()
		if !ok {
			t.Fatal("events consumer closed unexpectedly")
		}
		if e.Type == event.Started {
			startedCount++
		}
		if e.Type == event.Stopped {
			// "a" exited right as we cancel, racing the Restart starter's
			// pending delayed respawn against Stop's terminate phase.
			break
		}
	}

	cancel()
	<-runDone
	s.Stop(context.Background())

	// Give any would-be delayed respawn (200ms) well past its window, then
	// drain whatever arrived: it must not include a second Started(a).
	timeout := time.After(600 * time.Millisecond)
drain:
	for {
		select {
		case <-timeout:
			break drain
		default:
		}
		m, ok := eventsConsumer.TryNext()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if m.Type == event.Started {
			startedCount++
		}
	}

	if startedCount != 1 {
		t.Fatalf("observed %d Started(a) events, want 1 (command respawned after Stop)", startedCount)
	}
}

func TestSupervisorShutdownCommandRunsAfterParent(t *testing.T) {
	cfg := loadConfig(t, `{
		"failure_mode": "continue",
		"commands": [
			{"name":"a","command":"sleep 30","shutdown":"echo bye","starter":{"type":"once"}}
		]
	}`)

	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()
	messagesConsumer := messages.Consumer()

	s := New(cfg, events, messages, widthsFor(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(runDone)
	}()

	if started, ok := eventsConsumer.Next(); !ok || started.Type != event.Started {
		t.Fatalf("expected Started(a), got %#v ok=%v", started, ok)
	}

	cancel()
	<-runDone

	s.Stop(context.Background())

	var sawBye bool
	deadline := time.After(5 * time.Second)
	for !sawBye {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for shutdown command output")
		default:
		}
		m, ok := messagesConsumer.TryNext()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if cm, isCmdMsg := m.(message.CommandMessage); isCmdMsg && cm.Text() == "bye" {
			sawBye = true
		}
	}
}
