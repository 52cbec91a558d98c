package domain

import "time"

// SessionState is the lifecycle position of one charge transaction
type SessionState string

const (
	StateQueued    SessionState = "queued"
	StateAwaiting  SessionState = "awaiting"
	StateConfirmed SessionState = "confirmed"
	StateFailed    SessionState = "failed"
	StateTimedOut  SessionState = "timed_out"
	StateCancelled SessionState = "cancelled"
)

// Terminal reports whether no further transition is possible
func (s SessionState) Terminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// OutcomeStatus is what a caller of a charge finally learns
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeUnderpaid OutcomeStatus = "confirmed_underpaid"
	OutcomeOverpaid  OutcomeStatus = "confirmed_overpaid"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// Outcome is delivered exactly once per session when it reaches a terminal state
type Outcome struct {
	SessionID string        `json:"session_id"`
	Status    OutcomeStatus `json:"status"`
	Expected  int           `json:"expected"`
	Paid      int           `json:"paid"`
	Err       error         `json:"-"`
}

// Settleable reports whether the payment was taken and the transaction
// should be recorded. Underpaid completions are not recorded.
func (o Outcome) Settleable() bool {
	return o.Status == OutcomeConfirmed || o.Status == OutcomeOverpaid
}

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	Expected  int          `json:"expected"`
	Observed  int          `json:"observed"`
	Command   string       `json:"command"`
	CreatedAt time.Time    `json:"created_at"`
	Deadline  time.Time    `json:"deadline"`
}
