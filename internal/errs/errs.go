// Package errs holds the error taxonomy shared across pipeline stages.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected control-flow outcomes.
var (
	// ErrNotFound is returned when a profile, job or match record is missing.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning is returned when a matching run is triggered for a
	// user who already has one in flight. Not a failure: normal control flow
	// communicated as 409 to the caller.
	ErrAlreadyRunning = errors.New("matching already running")

	// ErrForbiddenTransition is returned when a match status change violates
	// the lifecycle state machine.
	ErrForbiddenTransition = errors.New("status transition not allowed")
)

// TransientError marks a failed call to an external backend (embedding, LLM,
// job provider) that may succeed on retry: network failures, timeouts, rate
// limits. Callers must never treat it as "no match".
type TransientError struct {
	Op  string // e.g. "embed", "generate", "adzuna search"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
