package store

import (
	"errors"
	"fmt"

	"github.com/cuemby/aof/pkg/types"
)

// Store-layer error kinds. Callers distinguish them with errors.Is.
var (
	// ErrTaskNotFound reports a task id absent from every status bucket.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition reports a status edge outside the allowed table.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation reports a record that fails schema validation.
	ErrValidation = errors.New("validation error")
)

// NotFoundError wraps ErrTaskNotFound with the offending id.
func NotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// InvalidTransitionError wraps ErrInvalidTransition with the rejected edge.
func InvalidTransitionError(id string, from, to types.Status) error {
	return fmt.Errorf("%w: %s cannot move %s -> %s", ErrInvalidTransition, id, from, to)
}

// ValidationError wraps ErrValidation with the failing record and issue.
func ValidationError(ref, issue string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, ref, issue)
}
