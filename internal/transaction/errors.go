package transaction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation          = errors.New("invalid request")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrCampaignNotEligible = errors.New("campaign not eligible for contributions")
	ErrInvalidProof        = errors.New("invalid proof")
	ErrStorageFailure      = errors.New("storage failure")
	// ErrConcurrentUpdate is returned by a store when a compare-and-set on the
	// transaction row found a different state than the one it was given.
	ErrConcurrentUpdate = errors.New("transaction changed concurrently")
)

// TransitionError is returned when the requested transition is not allowed
// from the transaction's current state.
type TransitionError struct {
	ID       uuid.UUID
	From     Status
	To       Status
	Credited bool
}

func (e *TransitionError) Error() string {
	if e.Credited {
		return fmt.Sprintf("transaction %s is %s and already credited, cannot move to %s", e.ID, e.From, e.To)
	}

	return fmt.Sprintf("transaction %s is %s, cannot move to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
