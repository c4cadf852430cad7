package workflow

import (
	"errors"
	"fmt"
)

// Workflow errors. Callers test with errors.Is; every returned error wraps one of these
// or is an infrastructure failure.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrMissingRequiredField   = errors.New("missing required field")
	ErrDuplicateSubmission    = errors.New("duplicate submission")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// NotFoundError builds an ErrNotFound for the named entity.
func NotFoundError(what, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
}

func invalidTransition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func missingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingRequiredField, field)
}
