// Package message defines the text the supervisor produces about its own
// operation (InternalMessage) and about a command's stdout/stderr
// (CommandMessage), plus the ordered Verbosity those messages carry.
package message

import (
	"fmt"
	"time"

	"github.com/brood-run/brood/internal/config"
)

// Verbosity is a totally ordered severity (original_source/brood/message.py's
// Verbosity(str, Enum) with __lt__), not a bare tag: Debug < Info < Warning <
// Error lets a Renderer filter on "print Info and above".
type Verbosity int

const (
	Debug Verbosity = iota
	Info
	Warning
	Error
)

func (v Verbosity) String() string {
	switch v {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

// IsDebug reports whether v is at or below Debug severity.
func (v Verbosity) IsDebug() bool { return v <= Debug }

// ParseVerbosity parses a Verbosity from its lowercase string form, as found
// in a RendererConfig.MinVerbosity field.
func ParseVerbosity(s string) (Verbosity, error) {
	switch s {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warning":
		return Warning, nil
	case "error":
		return Error, nil
	default:
		return 0, fmt.Errorf("message: unknown verbosity %q", s)
	}
}

// Message is the union InternalMessage | CommandMessage a Renderer consumes.
// Declared as an interface (rather than Python's typing.Union) per Go idiom;
// both variants implement Text()/Timestamp() and are distinguished with a
// type switch where a Renderer needs to know which one it has.
type Message interface {
	Text() string
	Timestamp() time.Time
}

// InternalMessage is text about the supervisor's own operation: command
// starting/stopping, a starter's decision, a fatal error. Published to the
// message Fanout alongside CommandMessage values.
type InternalMessage struct {
	TextValue string
	Verbosity Verbosity
	At        time.Time
}

func NewInternalMessage(text string, verbosity Verbosity) InternalMessage {
	return InternalMessage{TextValue: text, Verbosity: verbosity, At: time.Now()}
}

func (m InternalMessage) Text() string         { return m.TextValue }
func (m InternalMessage) Timestamp() time.Time { return m.At }

// CommandMessage is one line of output from a supervised command's stdout
// or stderr, tagged with the CommandConfig it came from so a Renderer can
// resolve that command's prefix/prefix_style template.
type CommandMessage struct {
	TextValue     string
	CommandConfig config.CommandConfig
	At            time.Time
}

func NewCommandMessage(text string, cfg config.CommandConfig) CommandMessage {
	return CommandMessage{TextValue: text, CommandConfig: cfg, At: time.Now()}
}

func (m CommandMessage) Text() string         { return m.TextValue }
func (m CommandMessage) Timestamp() time.Time { return m.At }
