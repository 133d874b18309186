package command

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/brood-run/brood/internal/config"
	"github.com/brood-run/brood/internal/event"
	"github.com/brood-run/brood/internal/fanout"
	"github.com/brood-run/brood/internal/message"
)

// cmdConfig builds a CommandConfig whose Command normalizes to the given
// shell string, going through JSON unmarshal since RawCommand's fields are
// unexported.
func cmdConfig(t *testing.T, name, shellCmd string) config.CommandConfig {
	t.Helper()
	var cfg config.CommandConfig
	raw := []byte(`{"name":"` + name + `","command":"` + shellCmd + `","starter":{"type":"once"}}`)
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("building test config: %v", err)
	}
	return cfg
}

func TestCommandOnceSuccess(t *testing.T) {
	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()
	messagesConsumer := messages.Consumer()

	cfg := cmdConfig(t, "a", "echo hi")
	cmd, err := Start(cfg, events, messages, 80)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	started, ok := eventsConsumer.Next()
	if !ok || started.Type != event.Started {
		t.Fatalf("expected Started event, got %#v ok=%v", started, ok)
	}

	var sawCommandMessage bool
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Stopped event")
		default:
		}

		e, ok := eventsConsumer.Next()
		if !ok {
			t.Fatal("events consumer closed unexpectedly")
		}
		if e.Type == event.Stopped {
			break
		}
	}

	for {
		m, ok := messagesConsumer.TryNext()
		if !ok {
			break
		}
		if cm, isCommandMsg := m.(message.CommandMessage); isCommandMsg {
			if cm.Text() == "hi" {
				sawCommandMessage = true
			}
		}
	}

	if !sawCommandMessage {
		t.Fatal("expected a CommandMessage with text \"hi\"")
	}

	code, exited := cmd.ExitCode()
	if !exited || code != 0 {
		t.Fatalf("ExitCode() = (%d, %v), want (0, true)", code, exited)
	}
	if cmd.WasKilled() {
		t.Fatal("a clean exit must not be WasKilled")
	}
}

func TestCommandTerminateSetsWasKilled(t *testing.T) {
	events := fanout.New[event.Event]()
	messages := fanout.New[message.Message]()
	eventsConsumer := events.Consumer()

	cfg := cmdConfig(t, "sleepy", "sleep 30")
	cmd, err := Start(cfg, events, messages, 80)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, ok := eventsConsumer.Next(); !ok {
		t.Fatal("expected Started event")
	}

	if err := cmd.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Stopped event after Terminate")
		default:
		}
		e, ok := eventsConsumer.Next()
		if !ok {
			t.Fatal("events consumer closed unexpectedly")
		}
		if e.Type == event.Stopped {
			break
		}
	}

	if !cmd.WasKilled() {
		t.Fatal("expected WasKilled to be true after Terminate")
	}

	if err := cmd.Terminate(); err != nil {
		t.Fatalf("second Terminate should be a no-op, got error: %v", err)
	}
}
