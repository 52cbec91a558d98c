// Package device owns the serial connection to the dispensing controller and
// exposes it as a line-oriented send/receive pair.
package device

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/metrics"
)

// Opener opens one connection to the device
type Opener func() (io.ReadWriteCloser, error)

// Link is the single owner of the device connection. Run keeps it open,
// reconnecting with backoff; Send may be called from any goroutine.
type Link struct {
	open       Opener
	clock      clock.Clock
	log        *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	writeWait  time.Duration

	mu   sync.Mutex
	port *port

	lines chan string
	errs  chan error
}

// Option configures a Link
type Option func(*Link)

// WithClock overrides the clock used for reconnect backoff
func WithClock(c clock.Clock) Option {
	return func(l *Link) { l.clock = c }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(l *Link) {
		if log != nil {
			l.log = log
		}
	}
}

// WithBackoff bounds the delay between reconnect attempts
func WithBackoff(min, max time.Duration) Option {
	return func(l *Link) {
		if min > 0 {
			l.minBackoff = min
		}
		if max >= l.minBackoff {
			l.maxBackoff = max
		}
	}
}

// WithWriteTimeout bounds how long Send waits for the port to take a line.
// The serial driver has no write deadline; on expiry the port is closed and
// reopened. Zero disables the bound.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Link) { l.writeWait = d }
}

// New creates a link that connects through open when Run is called
func New(open Opener, opts ...Option) *Link {
	l := &Link{
		open:       open,
		clock:      clock.New(),
		log:        zap.NewNop(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		writeWait:  2 * time.Second,
		lines:      make(chan string, 64),
		errs:       make(chan error, 4),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lines delivers complete inbound lines in arrival order, without terminator.
// Closed when Run returns.
func (l *Link) Lines() <-chan string { return l.lines }

// Errors delivers connection failures (*domain.LinkError). Closed when Run returns.
func (l *Link) Errors() <-chan error { return l.errs }

// Connected reports whether a connection is currently open
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// Send writes one complete line to the device
func (l *Link) Send(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		metrics.LinkFailuresTotal.WithLabelValues("write").Inc()
		return domain.NewLinkError("write", domain.ErrNotConnected)
	}
	if err := l.write(l.port, line); err != nil {
		metrics.LinkFailuresTotal.WithLabelValues("write").Inc()
		// Closing unblocks the reader, which reconnects.
		l.port.Close()
		l.port = nil
		metrics.LinkConnected.Set(0)
		return domain.NewLinkError("write", err)
	}
	return nil
}

// write gives up after writeWait. Closing the port unblocks the pending
// Write, so the goroutine always finishes.
func (l *Link) write(p *port, line []byte) error {
	if l.writeWait <= 0 {
		_, err := p.Write(line)
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Write(line)
		done <- err
	}()

	t := l.clock.Timer(l.writeWait)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		p.Close()
		return domain.ErrWriteTimeout
	}
}

// Run owns the connection until ctx is cancelled. Open and read failures are
// published on Errors and followed by a reconnect after backoff.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.errs)
	defer close(l.lines)

	backoff := l.minBackoff
	connectedBefore := false

	for ctx.Err() == nil {
		rwc, err := l.open()
		if err != nil {
			l.log.Warn("device open failed", zap.Error(err), zap.Duration("retry_in", backoff))
			l.publish(ctx, domain.NewLinkError("open", err))
			if !l.sleep(ctx, backoff) {
				return nil
			}
			backoff = l.nextBackoff(backoff)
			continue
		}

		if connectedBefore {
			metrics.LinkReconnectsTotal.Inc()
			l.log.Info("device reconnected")
		} else {
			l.log.Info("device connected")
		}
		connectedBefore = true
		backoff = l.minBackoff

		p := &port{ReadWriteCloser: rwc}
		l.attach(p)
		err = l.readLines(ctx, p)
		l.detach(p)

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		l.log.Warn("device read failed", zap.Error(err))
		l.publish(ctx, domain.NewLinkError("read", err))
		if !l.sleep(ctx, backoff) {
			return nil
		}
	}
	return nil
}

func (l *Link) readLines(ctx context.Context, p *port) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Close()
		case <-stop:
		}
	}()

	sc := bufio.NewScanner(p)
	sc.Split(ScanCRLF)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		select {
		case l.lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (l *Link) attach(p *port) {
	l.mu.Lock()
	l.port = p
	l.mu.Unlock()
	metrics.LinkConnected.Set(1)
}

func (l *Link) detach(p *port) {
	l.mu.Lock()
	if l.port == p {
		l.port = nil
	}
	l.mu.Unlock()
	p.Close()
	metrics.LinkConnected.Set(0)
}

func (l *Link) publish(ctx context.Context, err *domain.LinkError) {
	metrics.LinkFailuresTotal.WithLabelValues(err.Op).Inc()
	select {
	case l.errs <- err:
	case <-ctx.Done():
	}
}

func (l *Link) sleep(ctx context.Context, d time.Duration) bool {
	t := l.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Link) nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > l.maxBackoff {
		d = l.maxBackoff
	}
	return d
}

// port closes its connection at most once; the reader, the writer and
// cancellation may all try.
type port struct {
	io.ReadWriteCloser
	once sync.Once
}

func (p *port) Close() error {
	var err error
	p.once.Do(func() { err = p.ReadWriteCloser.Close() })
	return err
}
