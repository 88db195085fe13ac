package visitor

import "errors"

// Sentinel errors for lifecycle operations.
//
// Rejected transitions surface as one of these so callers can map them
// to structured responses naming the failed precondition. The store is
// never modified when one of them is returned.
var (
	// ErrNotFound indicates no visitor with the requested id exists.
	ErrNotFound = errors.New("visitor not found")

	// ErrInvalidHost indicates the host id on a registration does not
	// reference an active user with the host role.
	ErrInvalidHost = errors.New("host does not reference an active host user")

	// ErrInvalidTransition indicates the requested status is not reachable
	// from the visitor's current status.
	ErrInvalidTransition = errors.New("transition not allowed from current status")

	// ErrForbidden indicates the actor lacks the role or ownership the
	// requested transition requires.
	ErrForbidden = errors.New("actor not permitted to perform this transition")
)
