package flow

import (
	"errors"
	"fmt"
)

// ErrSubmitInFlight is returned when SubmitCurrent is called while a
// previous submission is still pending. The call is rejected rather than
// queued so a slow response can never produce a duplicate answer.
var ErrSubmitInFlight = errors.New("submission already in progress")

// ErrInvalidState is returned when an operation is called in a state that
// does not permit it.
var ErrInvalidState = errors.New("operation not valid in current state")

// ErrNoSuchItem is returned by NavigateBack when the target question has
// not been answered in this session.
var ErrNoSuchItem = errors.New("no answered item for question")

// ValidationError reports a locally rejected answer. It never reaches the
// server and never changes engine state.
type ValidationError struct {
	QuestionID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer for %s: %s", e.QuestionID, e.Reason)
}

// CollaboratorError wraps a failure from an external collaborator call.
// All collaborator failures are retryable with the same arguments.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
