package claims

import (
	"errors"
	"fmt"
)

// Error taxonomy for claim operations. Callers dispatch with errors.Is.
var (
	ErrValidation               = errors.New("validation failed")
	ErrNotFound                 = errors.New("claim not found")
	ErrConflict                 = errors.New("version conflict")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrNotOwner                 = errors.New("claimant does not own claim")
	ErrAlreadyClaimed           = errors.New("claim is already held")
	ErrHandoffNotFound          = errors.New("handoff not found")
	ErrHandoffAlreadyResolved   = errors.New("handoff already resolved")
	ErrClaimNotOwnedByRequester = errors.New("claim not owned by requester")
)

// OpError wraps a claim operation failure with the operation name and a
// snapshot of the claim at the time of failure, so callers can decide to
// re-read, retry, or escalate without another round trip.
type OpError struct {
	Op    string
	Claim *Claim // may be nil when the claim does not exist
	Err   error
}

// NewOpError builds an OpError around a sentinel error.
func NewOpError(op string, claim *Claim, err error) *OpError {
	return &OpError{Op: op, Claim: claim, Err: err}
}

func (e *OpError) Error() string {
	if e.Claim != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Claim.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
