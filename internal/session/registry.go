package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/codec"
	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/filter"
	"github.com/kidzoona/kiosk/internal/metrics"
)

// Sender writes one command line to the device
type Sender interface {
	Send(line []byte) error
}

// Charge is what a caller asks the registry to run on the device
type Charge struct {
	Request  domain.ChargeRequest
	Command  codec.Command
	Expected int
	Timeout  time.Duration
}

type session struct {
	id        string
	state     domain.SessionState
	charge    Charge
	observed  int
	createdAt time.Time
	deadline  time.Time
	outcome   domain.Outcome
	done      chan struct{}
}

func (s *session) snapshot() domain.Snapshot {
	return domain.Snapshot{
		ID:        s.id,
		State:     s.state,
		Expected:  s.charge.Expected,
		Observed:  s.observed,
		Command:   s.charge.Command.String(),
		CreatedAt: s.createdAt,
		Deadline:  s.deadline,
	}
}

// Registry is the only place that decides which transaction an incoming
// device event belongs to. The device replies carry no request id, so at
// most one session is ever Awaiting and every event goes to it; everyone
// else waits in FIFO order.
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	sender   Sender
	log      *zap.Logger
	mismatch domain.MismatchPolicy
	tick     time.Duration
	chatter  *filter.DedupeFilter

	active *session
	queue  []*session
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the clock used for deadlines
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMismatchPolicy decides how completions with paid != expected are reported
func WithMismatchPolicy(p domain.MismatchPolicy) Option {
	return func(r *Registry) { r.mismatch = p }
}

// WithExpireTick sets how often Run checks deadlines
func WithExpireTick(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.tick = d
		}
	}
}

// NewRegistry creates a registry that dispatches commands through sender
func NewRegistry(sender Sender, opts ...Option) *Registry {
	r := &Registry{
		clock:    clock.New(),
		sender:   sender,
		log:      zap.NewNop(),
		mismatch: domain.MismatchFlag,
		tick:     time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.chatter = filter.NewDedupeFilter(time.Minute, r.clock)
	return r
}

// Submit creates a session for c. If the device is idle the command is sent
// right away and the session is Awaiting; otherwise it is queued.
func (r *Registry) Submit(c Charge) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	s := &session{
		id:        uuid.NewString(),
		state:     domain.StateQueued,
		charge:    c,
		createdAt: now,
		done:      make(chan struct{}),
	}
	metrics.SessionsSubmittedTotal.Inc()
	r.queue = append(r.queue, s)
	r.log.Debug("session submitted",
		zap.String("session_id", s.id),
		zap.String("command", c.Command.String()),
		zap.Int("expected", c.Expected),
		zap.Int("queued_ahead", len(r.queue)-1))

	r.promote()
	return &Handle{s: s, r: r}
}

// OnEvent applies a decoded device event to the Awaiting session.
// It reports whether the event was applied.
func (r *Registry) OnEvent(ev domain.DeviceEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil {
		if ev.Kind != domain.EventUnrecognized {
			r.log.Debug("device event outside a transaction", zap.String("line", ev.Raw))
		}
		return false
	}

	switch ev.Kind {
	case domain.EventAmountUpdate:
		s.observed = ev.Amount
		r.log.Debug("amount update", zap.String("session_id", s.id), zap.Int("paid", s.observed))
		return true

	case domain.EventTransactionComplete:
		if ev.HasAmount {
			s.observed = ev.Amount
		}
		status, err := r.completion(s)
		r.finish(s, domain.StateConfirmed, status, err)
		r.promote()
		return true
	}
	return false
}

// OnLinkFailure fails the Awaiting session, if any, and moves on to the next
func (r *Registry) OnLinkFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil {
		r.log.Debug("link failure with no active session", zap.Error(err))
		return
	}
	r.finish(s, domain.StateFailed, domain.OutcomeFailed, err)
	r.promote()
}

// Expire times out the Awaiting session if its deadline is strictly before
// now and promotes the next one. Queued sessions have no deadline yet: their
// timeout window opens when their command is sent. It returns how many
// sessions timed out.
func (r *Registry) Expire(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || !now.After(s.deadline) {
		return 0
	}
	r.finish(s, domain.StateTimedOut, domain.OutcomeTimedOut, domain.ErrTimedOut)
	r.promote()
	return 1
}

// Cancel abandons a session that has not reached the device yet. A session
// that is Awaiting (or already terminal) is left alone and false is returned:
// once the command is out the hardware side effect cannot be undone.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, idx, ok := lo.FindIndexOf(r.queue, func(s *session) bool { return s.id == id })
	if !ok {
		return false
	}
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.finish(s, domain.StateCancelled, domain.OutcomeCancelled, domain.ErrCancelled)
	r.updateGauges()
	return true
}

// Status is the polling view of the registry
type Status struct {
	Active     bool      `json:"active"`
	SessionID  string    `json:"session_id,omitempty"`
	Expected   int       `json:"expected"`
	Paid       int       `json:"paid"`
	Deadline   time.Time `json:"deadline,omitempty"`
	QueueDepth int       `json:"queued"`
}

// Status returns the active session's progress
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{QueueDepth: len(r.queue)}
	if s := r.active; s != nil {
		st.Active = true
		st.SessionID = s.id
		st.Expected = s.charge.Expected
		st.Paid = s.observed
		st.Deadline = s.deadline
	}
	return st
}

// Run calls Expire on every tick until ctx is cancelled. The device has no
// heartbeat, so this is what keeps a silent device from wedging the queue.
func (r *Registry) Run(ctx context.Context) error {
	t := r.clock.Ticker(r.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := r.Expire(r.clock.Now()); n > 0 {
				r.log.Info("sessions timed out", zap.Int("count", n))
			}
		}
	}
}

// promote moves queued sessions onto the device until one is Awaiting or the
// queue is empty. Must be called with mu held.
func (r *Registry) promote() {
	defer r.updateGauges()

	for r.active == nil && len(r.queue) > 0 {
		s := r.queue[0]
		r.queue = r.queue[1:]

		if err := r.sender.Send(s.charge.Command.Bytes()); err != nil {
			r.log.Warn("command dispatch failed",
				zap.String("session_id", s.id),
				zap.String("command", s.charge.Command.String()),
				zap.Error(err))
			r.finish(s, domain.StateFailed, domain.OutcomeFailed, err)
			continue
		}

		s.state = domain.StateAwaiting
		s.deadline = r.clock.Now().Add(s.charge.Timeout)
		r.active = s
		r.log.Info("command sent",
			zap.String("session_id", s.id),
			zap.String("command", s.charge.Command.String()),
			zap.Int("expected", s.charge.Expected),
			zap.Time("deadline", s.deadline))
	}
}

// finish moves s to a terminal state and delivers its outcome. Calling it
// on a terminal session is a no-op, which is what makes delivery exactly-once.
// Must be called with mu held.
func (r *Registry) finish(s *session, state domain.SessionState, status domain.OutcomeStatus, err error) {
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.outcome = domain.Outcome{
		SessionID: s.id,
		Status:    status,
		Expected:  s.charge.Expected,
		Paid:      s.observed,
		Err:       err,
	}
	if r.active == s {
		r.active = nil
	}
	close(s.done)

	metrics.SessionOutcomeTotal.WithLabelValues(string(status)).Inc()
	fields := []zap.Field{
		zap.String("session_id", s.id),
		zap.String("state", string(state)),
		zap.Int("expected", s.charge.Expected),
		zap.Int("paid", s.observed),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.log.Info("session finished", fields...)
}

func (r *Registry) completion(s *session) (domain.OutcomeStatus, error) {
	if r.mismatch == domain.MismatchAccept || s.observed == s.charge.Expected {
		return domain.OutcomeConfirmed, nil
	}
	if s.observed < s.charge.Expected {
		return domain.OutcomeUnderpaid, domain.ErrUnderpaid
	}
	return domain.OutcomeOverpaid, domain.ErrOverpaid
}

func (r *Registry) updateGauges() {
	metrics.QueueDepth.Set(float64(len(r.queue)))
	metrics.ActiveSession.Set(metrics.BoolGauge(r.active != nil))
}
