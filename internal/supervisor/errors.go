package supervisor

import (
	"errors"
	"fmt"

	"github.com/brood-run/brood/internal/command"
)

// KillOthersError is raised by the event handler when FailureMode is
// KillOthers and a command exits nonzero without having been killed by the
// supervisor itself (spec.md §4.5). It aborts Run and routes into the
// shutdown protocol.
type KillOthersError struct {
	Command *command.Command
}

func (e *KillOthersError) Error() string {
	code, _ := e.Command.ExitCode()
	return fmt.Sprintf("killing other processes due to command failing with code %d: %q", code, e.Command.Config.CommandString())
}

// ErrCancelled is returned by Run when its context is cancelled (external
// interrupt), routing into the shutdown protocol as "keyboard interrupt"
// (spec.md §5 "Cancellation").
var ErrCancelled = errors.New("supervisor: cancelled")
