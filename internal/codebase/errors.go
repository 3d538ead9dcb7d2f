package codebase

import (
	"errors"
	"fmt"

	"github.com/phobologic/callindex/internal/fqsen"
)

// ErrNotFound is returned by Get when nothing is registered at the derived key.
var ErrNotFound = errors.New("callable not found")

// ErrInvariantViolation marks a programming error in a collaborator, such as
// a method whose FQSEN is neither a method nor a function name.
var ErrInvariantViolation = errors.New("invariant violation")

// NotFoundError carries the FQSEN that failed to resolve.
type NotFoundError struct {
	FQSEN fqsen.Callable
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %v", ErrNotFound, e.FQSEN)
}

// Unwrap allows errors.Is(err, ErrNotFound).
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
