// Package gateway is the request/response face of the payment core: one
// call submits a charge and waits for the device to confirm it.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/codec"
	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/metrics"
	"github.com/kidzoona/kiosk/internal/session"
)

// expireSlack pushes the wake-up just past the deadline; Expire only acts on
// deadlines strictly in the past.
const expireSlack = time.Millisecond

// Registry is the part of the session registry the gateway drives
type Registry interface {
	Submit(c session.Charge) *session.Handle
	Expire(now time.Time) int
	Cancel(id string) bool
}

// SettleFunc records a settleable outcome and returns the ticket number.
// It runs at most once per charge, after the outcome is known, even when the
// caller has stopped waiting.
type SettleFunc func(ctx context.Context, out domain.Outcome) (ticket int, err error)

// Result is what a charge produced
type Result struct {
	Outcome   domain.Outcome
	Quote     domain.Quote
	Command   string
	Ticket    int
	SettleErr error
}

// Gateway turns the registry's sessions into a blocking call
type Gateway struct {
	reg     Registry
	pricing domain.Pricing
	clock   clock.Clock
	log     *zap.Logger
}

// Option configures a Gateway
type Option func(*Gateway)

// WithClock overrides the clock. It must be the registry's clock.
func WithClock(c clock.Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(g *Gateway) {
		if log != nil {
			g.log = log
		}
	}
}

// New creates a gateway over reg
func New(reg Registry, pricing domain.Pricing, opts ...Option) *Gateway {
	g := &Gateway{
		reg:     reg,
		pricing: pricing,
		clock:   clock.New(),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Quote prices req and builds the command without touching the device
func (g *Gateway) Quote(req domain.ChargeRequest) (domain.Quote, codec.Command, error) {
	q, err := g.pricing.Quote(req)
	if err != nil {
		return q, "", err
	}
	return q, codec.Encode(req.AdultSockQty, req.KidsSockQty, q.Pulses), nil
}

// Charge submits req and waits until the session is terminal, its deadline
// passes, or ctx is done.
//
// If ctx is done while the session is still queued, the session is cancelled
// and never reaches the device. If it is already awaiting the device, the
// caller is detached (domain.ErrDetached) but the session runs on; settle is
// still invoked if it is confirmed later.
//
// Failed and timed-out sessions are not errors here: they are reported in
// Result.Outcome. The error return is reserved for requests that could not
// be submitted and for callers that gave up.
func (g *Gateway) Charge(ctx context.Context, req domain.ChargeRequest, timeout time.Duration, settle SettleFunc) (Result, error) {
	quote, cmd, err := g.Quote(req)
	if err != nil {
		return Result{Quote: quote}, err
	}

	start := g.clock.Now()
	h := g.reg.Submit(session.Charge{
		Request:  req,
		Command:  cmd,
		Expected: quote.Total,
		Timeout:  timeout,
	})
	log := g.log.With(zap.String("session_id", h.ID()))
	log.Debug("charge submitted", zap.String("command", cmd.String()), zap.Int("total", quote.Total))

	results := make(chan Result, 1)
	go g.watch(context.WithoutCancel(ctx), h, Result{Quote: quote, Command: cmd.String()}, settle, start, results)

	for {
		wait := h.Deadline().Sub(g.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := g.clock.Timer(wait + expireSlack)

		select {
		case res := <-results:
			timer.Stop()
			return res, nil

		case <-timer.C:
			// Re-arms against the new deadline if the session was promoted meanwhile.
			g.reg.Expire(g.clock.Now())

		case <-ctx.Done():
			timer.Stop()
			if g.reg.Cancel(h.ID()) {
				res := <-results
				return res, fmt.Errorf("charge abandoned while queued: %w", ctx.Err())
			}
			select {
			case res := <-results:
				return res, nil
			default:
			}
			log.Warn("caller detached from in-flight payment", zap.Error(ctx.Err()))
			return Result{
				Outcome: domain.Outcome{SessionID: h.ID(), Expected: quote.Total},
				Quote:   quote,
				Command: cmd.String(),
			}, fmt.Errorf("%w: %w", domain.ErrDetached, ctx.Err())
		}
	}
}

func (g *Gateway) watch(ctx context.Context, h *session.Handle, res Result, settle SettleFunc, start time.Time, out chan<- Result) {
	<-h.Done()
	res.Outcome = h.Outcome()

	if settle != nil && res.Outcome.Settleable() {
		res.Ticket, res.SettleErr = settle(ctx, res.Outcome)
		if res.SettleErr != nil {
			metrics.SettleFailuresTotal.Inc()
			g.log.Error("payment confirmed but not recorded",
				zap.String("session_id", res.Outcome.SessionID),
				zap.Int("paid", res.Outcome.Paid),
				zap.Error(res.SettleErr))
		}
	}

	metrics.ChargeDuration.WithLabelValues(string(res.Outcome.Status)).Observe(g.clock.Since(start).Seconds())
	out <- res
}
