package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. The split matters operationally:
// validation failures are dropped, transient failures are redelivered,
// integrity failures page a human.

// ValidationError marks a permanently invalid inbound message. Never
// retried: the message is logged and dropped.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientError marks a secret-store, storage or transport failure.
// Retried up to the bounded attempt count, then surfaced to the
// transport's redelivery / dead-letter mechanism.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ChainIntegrityError is raised only by verification paths when a
// recomputed signature does not match a stored one. Never auto-corrected.
type ChainIntegrityError struct {
	OrgID    string
	BrokenAt int
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("chain integrity broken for org %s at index %d", e.OrgID, e.BrokenAt)
}

var (
	// ErrChainContention: the optimistic chain-head write lost a race.
	// Retried immediately with a refreshed head, bounded attempts.
	ErrChainContention = errors.New("chain head advanced by a concurrent writer")

	// ErrUnscopedQuery: a query without an organization scope. Rejected
	// before any storage access.
	ErrUnscopedQuery = errors.New("query requires an organization scope")

	ErrEntryNotFound = errors.New("audit entry not found")
)

// IsRetryable reports whether the failure should go back to the
// transport for redelivery.
func IsRetryable(err error) bool {
	var v *ValidationError
	if errors.As(err, &v) {
		return false
	}
	var integrity *ChainIntegrityError
	if errors.As(err, &integrity) {
		return false
	}
	if errors.Is(err, ErrUnscopedQuery) || errors.Is(err, ErrEntryNotFound) {
		return false
	}
	return err != nil
}
