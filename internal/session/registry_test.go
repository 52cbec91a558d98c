package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidzoona/kiosk/internal/codec"
	"github.com/kidzoona/kiosk/internal/domain"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fail int
	err  error
}

func (f *fakeSender) Send(line []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return f.err
	}
	f.sent = append(f.sent, string(line))
	return nil
}

func (f *fakeSender) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestRegistry(opts ...Option) (*Registry, *fakeSender, *clock.Mock) {
	clk := clock.NewMock()
	sender := &fakeSender{}
	reg := NewRegistry(sender, append([]Option{WithClock(clk)}, opts...)...)
	return reg, sender, clk
}

func charge(adult, kid, total int) Charge {
	return Charge{
		Request:  domain.ChargeRequest{AdultSockQty: adult, KidsSockQty: kid},
		Command:  codec.Encode(adult, kid, total/10),
		Expected: total,
		Timeout:  time.Minute,
	}
}

func outcomeOf(t *testing.T, h *Handle) domain.Outcome {
	t.Helper()
	select {
	case <-h.Done():
		return h.Outcome()
	default:
		t.Fatalf("session %s has not finished (state %s)", h.ID(), h.Snapshot().State)
		return domain.Outcome{}
	}
}

func assertPending(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
		t.Fatalf("session %s finished unexpectedly: %+v", h.ID(), h.Outcome())
	default:
	}
}

func TestSubmitSendsCommandWhenIdle(t *testing.T) {
	reg, sender, _ := newTestRegistry()

	h := reg.Submit(charge(2, 3, 200))

	assert.Equal(t, []string{"B2,3#20\r\n"}, sender.commands())
	assert.Equal(t, domain.StateAwaiting, h.Snapshot().State)
	assert.Equal(t, "B2,3#20", h.Snapshot().Command)
	assertPending(t, h)
}

func TestAmountUpdatesThenComplete(t *testing.T) {
	reg, _, _ := newTestRegistry()
	h := reg.Submit(charge(1, 1, 120))

	require.True(t, reg.OnEvent(codec.Decode("PAID:50")))
	assert.Equal(t, 50, reg.Status().Paid)
	require.True(t, reg.OnEvent(codec.Decode("PAID:120")))
	assertPending(t, h)
	require.True(t, reg.OnEvent(codec.Decode("PAYMENT_COMPLETE")))

	out := outcomeOf(t, h)
	assert.Equal(t, domain.OutcomeConfirmed, out.Status)
	assert.Equal(t, 120, out.Paid)
	assert.NoError(t, out.Err)
	assert.Equal(t, domain.StateConfirmed, h.Snapshot().State)
	assert.False(t, reg.Status().Active)
}

func TestSecondSubmitWaitsForFirst(t *testing.T) {
	reg, sender, _ := newTestRegistry()

	first := reg.Submit(charge(1, 0, 50))
	second := reg.Submit(charge(0, 2, 100))

	assert.Equal(t, []string{"A1#5\r\n"}, sender.commands())
	assert.Equal(t, domain.StateQueued, second.Snapshot().State)
	assert.Equal(t, 1, reg.Status().QueueDepth)

	// Events only ever reach the active session
	reg.OnEvent(codec.Decode("PAID:50"))
	assert.Equal(t, 50, first.Snapshot().Observed)
	assert.Equal(t, 0, second.Snapshot().Observed)

	reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))
	assert.Equal(t, domain.OutcomeConfirmed, outcomeOf(t, first).Status)

	assert.Equal(t, []string{"A1#5\r\n", "C2#10\r\n"}, sender.commands())
	assert.Equal(t, domain.StateAwaiting, second.Snapshot().State)
	assert.Equal(t, second.ID(), reg.Status().SessionID)
	assertPending(t, second)
}

func TestNothingOrderedCompletesAtZero(t *testing.T) {
	reg, sender, _ := newTestRegistry()
	h := reg.Submit(charge(0, 0, 0))
	assert.Equal(t, []string{"N0#0\r\n"}, sender.commands())

	reg.OnEvent(codec.Decode("No socks ordered"))

	out := outcomeOf(t, h)
	assert.Equal(t, domain.OutcomeConfirmed, out.Status)
	assert.Equal(t, 0, out.Paid)
}

func TestExpireTimesOutAndPromotesNext(t *testing.T) {
	reg, sender, clk := newTestRegistry()

	first := reg.Submit(charge(1, 0, 50))
	clk.Add(30 * time.Second)
	second := reg.Submit(charge(0, 1, 50))

	deadline := first.Deadline()
	assert.Equal(t, 0, reg.Expire(deadline))
	assertPending(t, first)

	assert.Equal(t, 1, reg.Expire(deadline.Add(time.Nanosecond)))
	out := outcomeOf(t, first)
	assert.Equal(t, domain.OutcomeTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrTimedOut)

	// Promoted immediately, with a fresh deadline
	assert.Equal(t, []string{"A1#5\r\n", "C1#5\r\n"}, sender.commands())
	assert.Equal(t, domain.StateAwaiting, second.Snapshot().State)
	assert.Equal(t, clk.Now().Add(time.Minute), second.Deadline())

	// Expiring again does not touch the first session
	assert.Equal(t, 0, reg.Expire(deadline.Add(time.Nanosecond)))
	assert.Equal(t, domain.OutcomeTimedOut, outcomeOf(t, first).Status)
}

func TestQueuedTimeoutStartsAtPromotion(t *testing.T) {
	reg, sender, clk := newTestRegistry()

	// Same timeout, submitted back to back: the second waits out the
	// first's whole window and must still get its own on the device
	first := reg.Submit(charge(1, 0, 50))
	clk.Add(100 * time.Millisecond)
	second := reg.Submit(charge(0, 1, 50))
	assert.Equal(t, first.Deadline(), second.Deadline(), "queued session waits on the active deadline")

	clk.Add(time.Minute)
	assert.Equal(t, 1, reg.Expire(clk.Now()))

	assert.Equal(t, domain.OutcomeTimedOut, outcomeOf(t, first).Status)
	assertPending(t, second)
	assert.Equal(t, domain.StateAwaiting, second.Snapshot().State)
	assert.Equal(t, []string{"A1#5\r\n", "C1#5\r\n"}, sender.commands())
	assert.Equal(t, clk.Now().Add(time.Minute), second.Deadline())

	reg.OnEvent(codec.Decode("PAID:50"))
	reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))
	assert.Equal(t, domain.OutcomeConfirmed, outcomeOf(t, second).Status)
}

func TestExpireLeavesQueuedSessionsAlone(t *testing.T) {
	reg, sender, clk := newTestRegistry()

	active := reg.Submit(Charge{Command: codec.Encode(1, 0, 5), Expected: 50, Timeout: time.Hour})
	queued := reg.Submit(Charge{Command: codec.Encode(0, 1, 5), Expected: 50, Timeout: time.Minute})

	clk.Add(2 * time.Minute)
	assert.Equal(t, 0, reg.Expire(clk.Now()))

	assertPending(t, active)
	assertPending(t, queued)
	assert.Equal(t, domain.StateQueued, queued.Snapshot().State)
	assert.Equal(t, 1, reg.Status().QueueDepth)
	assert.Len(t, sender.commands(), 1)
}

func TestCompletionDeliveredExactlyOnce(t *testing.T) {
	reg, _, clk := newTestRegistry()
	h := reg.Submit(charge(0, 1, 50))

	reg.OnEvent(codec.Decode("PAID:50"))
	reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))
	first := outcomeOf(t, h)

	// Late chatter, a second completion, a link failure and an expiry must
	// not touch a finished session
	assert.False(t, reg.OnEvent(codec.Decode("PAID:999")))
	assert.False(t, reg.OnEvent(codec.Decode("PAYMENT_COMPLETE")))
	reg.OnLinkFailure(errors.New("unplugged"))
	clk.Add(time.Hour)
	assert.Equal(t, 0, reg.Expire(clk.Now()))

	assert.Equal(t, first, h.Outcome())
	assert.Equal(t, 50, h.Outcome().Paid)
}

func TestEventsWithoutActiveSessionAreDiscarded(t *testing.T) {
	reg, _, _ := newTestRegistry()
	assert.False(t, reg.OnEvent(codec.Decode("PAID:50")))
	assert.False(t, reg.OnEvent(codec.Decode("PAYMENT_COMPLETE")))

	h := reg.Submit(charge(0, 1, 50))
	assert.Equal(t, 0, h.Snapshot().Observed)
	assertPending(t, h)
}

func TestLinkFailureFailsActiveOnly(t *testing.T) {
	reg, sender, _ := newTestRegistry()
	first := reg.Submit(charge(1, 0, 50))
	second := reg.Submit(charge(0, 1, 50))

	linkErr := domain.NewLinkError("read", errors.New("input/output error"))
	reg.OnLinkFailure(linkErr)

	out := outcomeOf(t, first)
	assert.Equal(t, domain.OutcomeFailed, out.Status)
	var le *domain.LinkError
	assert.ErrorAs(t, out.Err, &le)

	assert.Equal(t, domain.StateAwaiting, second.Snapshot().State)
	assert.Len(t, sender.commands(), 2)
}

func TestDispatchFailureFailsSessionAndTriesNext(t *testing.T) {
	reg, sender, _ := newTestRegistry()
	first := reg.Submit(charge(1, 0, 50))
	second := reg.Submit(charge(0, 1, 50))
	third := reg.Submit(charge(1, 1, 100))

	sender.mu.Lock()
	sender.fail, sender.err = 1, domain.NewLinkError("write", domain.ErrNotConnected)
	sender.mu.Unlock()

	reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))

	assert.Equal(t, domain.OutcomeConfirmed, outcomeOf(t, first).Status)
	out := outcomeOf(t, second)
	assert.Equal(t, domain.OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrNotConnected)
	assert.Equal(t, domain.StateAwaiting, third.Snapshot().State)
	assert.Equal(t, []string{"A1#5\r\n", "B1,1#10\r\n"}, sender.commands())
}

func TestMismatchPolicy(t *testing.T) {
	t.Run("flag reports underpaid", func(t *testing.T) {
		reg, _, _ := newTestRegistry()
		h := reg.Submit(charge(0, 2, 100))
		reg.OnEvent(codec.Decode("PAID:60"))
		reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))

		out := outcomeOf(t, h)
		assert.Equal(t, domain.OutcomeUnderpaid, out.Status)
		assert.ErrorIs(t, out.Err, domain.ErrUnderpaid)
		assert.False(t, out.Settleable())
	})

	t.Run("flag reports overpaid", func(t *testing.T) {
		reg, _, _ := newTestRegistry()
		h := reg.Submit(charge(0, 1, 50))
		reg.OnEvent(codec.Decode("PAID:60"))
		reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))

		out := outcomeOf(t, h)
		assert.Equal(t, domain.OutcomeOverpaid, out.Status)
		assert.True(t, out.Settleable())
	})

	t.Run("accept confirms regardless", func(t *testing.T) {
		reg, _, _ := newTestRegistry(WithMismatchPolicy(domain.MismatchAccept))
		h := reg.Submit(charge(0, 2, 100))
		reg.OnEvent(codec.Decode("PAID:60"))
		reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))

		out := outcomeOf(t, h)
		assert.Equal(t, domain.OutcomeConfirmed, out.Status)
		assert.Equal(t, 60, out.Paid)
	})

	t.Run("amount on the completion line counts", func(t *testing.T) {
		reg, _, _ := newTestRegistry()
		h := reg.Submit(charge(0, 2, 100))
		reg.OnEvent(codec.Decode("PAID:100 PAYMENT_COMPLETE"))
		assert.Equal(t, domain.OutcomeConfirmed, outcomeOf(t, h).Status)
	})
}

func TestCancel(t *testing.T) {
	reg, sender, _ := newTestRegistry()
	active := reg.Submit(charge(1, 0, 50))
	queued := reg.Submit(charge(0, 1, 50))

	assert.False(t, reg.Cancel(active.ID()), "awaiting session must not be aborted")
	assertPending(t, active)

	assert.True(t, reg.Cancel(queued.ID()))
	out := outcomeOf(t, queued)
	assert.Equal(t, domain.OutcomeCancelled, out.Status)
	assert.ErrorIs(t, out.Err, domain.ErrCancelled)
	assert.False(t, reg.Cancel(queued.ID()))

	reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))
	assert.Len(t, sender.commands(), 1, "cancelled session must never reach the device")
}

func TestQueueIsFIFO(t *testing.T) {
	reg, sender, _ := newTestRegistry()

	var handles []*Handle
	for i := 1; i <= 5; i++ {
		handles = append(handles, reg.Submit(charge(i, 0, i*50)))
	}
	for range handles {
		reg.OnEvent(codec.Decode("PAYMENT_COMPLETE"))
	}

	assert.Equal(t, []string{"A1#5\r\n", "A2#10\r\n", "A3#15\r\n", "A4#20\r\n", "A5#25\r\n"}, sender.commands())
	for _, h := range handles {
		assert.Equal(t, domain.StateConfirmed, h.Snapshot().State)
	}
}

// inflightSender fails the test if a command is dispatched while another
// one has not been completed yet.
type inflightSender struct {
	inflight  atomic.Int32
	sent      atomic.Int32
	violation atomic.Bool
}

func (s *inflightSender) Send([]byte) error {
	if s.inflight.Add(1) != 1 {
		s.violation.Store(true)
	}
	s.sent.Add(1)
	return nil
}

func TestConcurrentSubmitsKeepOneAwaiting(t *testing.T) {
	sender := &inflightSender{}
	reg := NewRegistry(sender)

	const n = 50
	var wg sync.WaitGroup
	handles := make(chan *Handle, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- reg.Submit(Charge{Command: codec.Encode(0, 1, 5), Expected: 50, Timeout: time.Minute})
		}()
	}

	completed := 0
	deadline := time.Now().Add(5 * time.Second)
	for completed < n && time.Now().Before(deadline) {
		if reg.Status().Active {
			sender.inflight.Store(0)
			if reg.OnEvent(codec.Decode("PAYMENT_COMPLETE")) {
				completed++
			}
		}
	}
	wg.Wait()
	close(handles)

	require.Equal(t, n, completed)
	assert.False(t, sender.violation.Load(), "two sessions were awaiting at once")
	assert.EqualValues(t, n, sender.sent.Load())
	for h := range handles {
		assert.Equal(t, domain.OutcomeConfirmed, outcomeOf(t, h).Status)
	}
}

type chanSource struct {
	lines chan string
	errs  chan error
}

func (c chanSource) Lines() <-chan string { return c.lines }
func (c chanSource) Errors() <-chan error { return c.errs }

func TestConsumeAppliesLinesInOrder(t *testing.T) {
	reg, _, _ := newTestRegistry()
	src := chanSource{lines: make(chan string, 8), errs: make(chan error, 1)}
	h := reg.Submit(charge(1, 1, 120))

	for _, line := range []string{"Dispensing", "PAID:50", "PAID:abc", "PAID:120", "PAYMENT_COMPLETE"} {
		src.lines <- line
	}
	close(src.lines)
	close(src.errs)

	require.NoError(t, reg.Consume(context.Background(), src))

	out := outcomeOf(t, h)
	assert.Equal(t, domain.OutcomeConfirmed, out.Status)
	assert.Equal(t, 120, out.Paid)
}

func TestConsumeAppliesBufferedLinesBeforeLinkFailure(t *testing.T) {
	reg, _, _ := newTestRegistry()
	src := chanSource{lines: make(chan string, 8), errs: make(chan error, 1)}
	h := reg.Submit(charge(0, 1, 50))

	src.lines <- "PAID:50"
	src.lines <- "PAYMENT_COMPLETE"
	src.errs <- domain.NewLinkError("read", errors.New("device removed"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reg.Consume(ctx, src)
	}()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session never finished")
	}
	cancel()
	<-done

	assert.Equal(t, domain.OutcomeConfirmed, h.Outcome().Status)
}

func TestConsumeFailsActiveSessionOnLinkError(t *testing.T) {
	reg, _, _ := newTestRegistry()
	src := chanSource{lines: make(chan string), errs: make(chan error, 1)}
	h := reg.Submit(charge(0, 1, 50))

	src.errs <- domain.NewLinkError("read", errors.New("device removed"))
	close(src.errs)
	close(src.lines)
	require.NoError(t, reg.Consume(context.Background(), src))

	assert.Equal(t, domain.OutcomeFailed, outcomeOf(t, h).Status)
}

func TestRunExpiresOnTick(t *testing.T) {
	reg, _, clk := newTestRegistry(WithExpireTick(time.Second))
	h := reg.Submit(Charge{Command: codec.Encode(0, 1, 5), Expected: 50, Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = reg.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		select {
		case <-h.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.OutcomeTimedOut, h.Outcome().Status)
}
