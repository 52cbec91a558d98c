package session

import (
	"time"

	"github.com/kidzoona/kiosk/internal/domain"
)

// Handle is the submitter's view of one session
type Handle struct {
	s *session
	r *Registry
}

// ID returns the session id
func (h *Handle) ID() string { return h.s.id }

// Done is closed exactly once, when the session reaches a terminal state
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Outcome returns the terminal outcome. Only meaningful after Done is closed;
// the outcome never changes once set.
func (h *Handle) Outcome() domain.Outcome {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.s.outcome
}

// Deadline returns when the session's fate next depends on a timeout. Once
// the command is sent that is the session's own deadline (promotion + timeout).
// While queued it is the deadline of the session ahead on the device, or now
// if there is none.
func (h *Handle) Deadline() time.Time {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.s.state == domain.StateQueued {
		if a := h.r.active; a != nil {
			return a.deadline
		}
		return h.r.clock.Now()
	}
	return h.s.deadline
}

// Snapshot returns a copy of the session's current state
func (h *Handle) Snapshot() domain.Snapshot {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.s.snapshot()
}
