package engine

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/evalhub/internal/model"
)

// Error kinds returned by the engine. Callers test them with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidState   = errors.New("invalid state")
)

// StateError reports an operation attempted from a state that does not
// permit it. It matches ErrInvalidState.
type StateError struct {
	Op      string
	Current model.AssignmentStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s assignment in state %s", e.Op, e.Current)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func forbidden(what string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, what)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// lookupErr maps a store miss to ErrNotFound and wraps anything else.
func lookupErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(what)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
