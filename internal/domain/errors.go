package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTimedOut is reported when a session passes its deadline without completion
	ErrTimedOut = errors.New("payment timed out")
	// ErrCancelled is reported when a queued session is abandoned before reaching the device
	ErrCancelled = errors.New("payment cancelled before dispatch")
	// ErrDetached is returned to a caller that stopped waiting on a session
	// already owning the device; the session keeps running
	ErrDetached = errors.New("caller detached from in-flight payment")
	// ErrNotConnected is the link error when no serial connection is open
	ErrNotConnected = errors.New("device not connected")
	// ErrWriteTimeout is the link error when the device stops accepting bytes
	ErrWriteTimeout = errors.New("device write timed out")
	// ErrNonDivisible rejects totals that are not a whole number of pulses
	ErrNonDivisible = errors.New("total is not a multiple of the pulse unit value")
	// ErrInvalidRequest rejects negative quantities or rates
	ErrInvalidRequest = errors.New("invalid charge request")
	// ErrUnderpaid marks a completion where the device reported less than expected
	ErrUnderpaid = errors.New("device reported less than the expected amount")
	// ErrOverpaid marks a completion where the device reported more than expected
	ErrOverpaid = errors.New("device reported more than the expected amount")
	// ErrMalformedAmount marks a PAID line whose amount could not be parsed
	ErrMalformedAmount = errors.New("malformed PAID amount")
)

// LinkError is a connection-level failure of the device link
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("device link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// NewLinkError wraps err as a LinkError for op
func NewLinkError(op string, err error) *LinkError {
	return &LinkError{Op: op, Err: err}
}
