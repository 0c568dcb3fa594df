package workflow

import (
	"errors"
	"fmt"

	"github.com/safeballot/backend/internal/ballot"
)

var (
	// ErrWorkflowBusy rejects a transition while another is still in
	// flight. Requests are rejected, never queued.
	ErrWorkflowBusy = errors.New("workflow: another transition is in flight")
	// ErrFrozenDraft rejects draft mutation outside the editing steps.
	ErrFrozenDraft = errors.New("workflow: draft is frozen")
	// ErrInvalidTransition rejects an event the current state does not accept.
	ErrInvalidTransition = errors.New("workflow: transition not allowed in current state")
	// ErrCancelRefused rejects cancellation once committing has begun:
	// payment is captured and the election is about to exist.
	ErrCancelRefused = errors.New("workflow: payment captured and commit in progress, contact support to cancel")
	// ErrInconsistentState guards contract violations (e.g. committing
	// without a succeeded authorization). Reaching it through the public
	// API is a bug.
	ErrInconsistentState = errors.New("workflow: inconsistent internal state")
)

// ValidationError blocks a forward transition with the validator's reason.
type ValidationError struct {
	Step  int
	Issue ballot.Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: step %d incomplete: %s", e.Step, e.Issue)
}
