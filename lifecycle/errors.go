package lifecycle

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Repository implementations.
var (
	// ErrNotFound is returned when an entity id is unknown.
	ErrNotFound = errors.New("entity not found")

	// ErrRevisionConflict is returned when a conditional write observed a
	// stale revision. The stored record is unchanged.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrAlreadyExists is returned when creating an entity whose key is
	// already present.
	ErrAlreadyExists = errors.New("entity already exists")
)

// InvalidTransitionError indicates an illegal state edge was attempted.
// The proposal's stored state is unchanged.
type InvalidTransitionError struct {
	ProposalID string
	From       Status
	To         Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s → %s", e.ProposalID, e.From, e.To)
}

// PreconditionError indicates an operation was attempted against an entity
// that is not in the required state.
type PreconditionError struct {
	Operation string
	Required  string
	Actual    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires %s, got %s", e.Operation, e.Required, e.Actual)
}
