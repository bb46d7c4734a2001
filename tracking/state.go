package tracking

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the configuration state of a session.
type State int

// The session states. Closed is terminal: it is entered once the tracking loop has shut the tracker down.
const (
	Unconfigured State = iota
	Configuring
	Configured
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configuring:
		return "configuring"
	case Configured:
		return "configured"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var allowedTransitions = map[State][]State{
	Unconfigured: {Configuring},
	Configuring:  {Configured, Unconfigured},
	Configured:   {Closed},
}

type stateMachine struct {
	current State
}

// transition moves from one state to another. It fails if the machine is not in from, or if the
// move is not allowed.
func (m *stateMachine) transition(from, to State) error {
	if m.current != from {
		if from == Unconfigured && to == Configuring {
			if m.current == Closed {
				return errors.Wrap(ErrSessionClosed, "cannot configure")
			}
			return ErrAlreadyConfigured
		}
		return errors.Errorf("cannot move to %s from %s: session is %s", to, from, m.current)
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			m.current = to
			return nil
		}
	}
	return errors.Errorf("transition from %s to %s is not allowed", from, to)
}

func (m *stateMachine) is(s State) bool {
	return m.current == s
}
