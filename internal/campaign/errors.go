package campaign

import (
	"errors"
	"fmt"

	"github.com/soyeahso/outreach/internal/domain"
)

var (
	// ErrNotFound is returned for an unknown agent id.
	ErrNotFound = errors.New("agent not found")
	// ErrInvalidTransition is returned when a control command is illegal in
	// the agent's current state. The agent is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAgentActive is returned when deleting a running or paused agent.
	ErrAgentActive = errors.New("agent is active")
	// ErrNoLeads is returned when spawning without any lead ids.
	ErrNoLeads = errors.New("at least one lead id is required")
)

// TransitionError reports a rejected control command.
type TransitionError struct {
	Op            string
	From          domain.AgentStatus
	StopRequested bool
}

func (e *TransitionError) Error() string {
	if e.StopRequested {
		return fmt.Sprintf("cannot %s agent: stop already requested", e.Op)
	}
	return fmt.Sprintf("cannot %s agent in %s state", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
