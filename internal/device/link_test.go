package device

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kidzoona/kiosk/internal/domain"
)

// pipeOpener hands out the host side of in-memory pipes; each successful
// open pushes the matching device side on devices.
type pipeOpener struct {
	mu      sync.Mutex
	fail    int
	devices chan net.Conn
}

func newPipeOpener(fail int) *pipeOpener {
	return &pipeOpener{fail: fail, devices: make(chan net.Conn, 4)}
}

func (o *pipeOpener) open() (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail > 0 {
		o.fail--
		return nil, errors.New("no such file or directory")
	}
	host, dev := net.Pipe()
	o.devices <- dev
	return host, nil
}

func nextDevice(t *testing.T, o *pipeOpener) net.Conn {
	t.Helper()
	select {
	case dev := <-o.devices:
		return dev
	case <-time.After(2 * time.Second):
		t.Fatal("link never opened the device")
		return nil
	}
}

func nextLine(t *testing.T, l *Link) string {
	t.Helper()
	select {
	case line := <-l.Lines():
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("no line delivered")
		return ""
	}
}

func nextErr(t *testing.T, l *Link) error {
	t.Helper()
	select {
	case err := <-l.Errors():
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered")
		return nil
	}
}

func startLink(t *testing.T, o *pipeOpener, opts ...Option) (*Link, func()) {
	t.Helper()
	l := New(o.open, append([]Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	return l, func() {
		cancel()
		<-done
	}
}

func TestScanCRLF(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("PAID:50\r\nPAID:120\r\n\r\nPAYMENT_COMPLETE\nPARTIAL"))
	sc.Split(ScanCRLF)

	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"PAID:50", "PAID:120", "", "PAYMENT_COMPLETE"}, got)
}

func TestLinkDeliversLinesInOrderAcrossPartialWrites(t *testing.T) {
	o := newPipeOpener(0)
	l, stop := startLink(t, o)
	defer stop()

	dev := nextDevice(t, o)
	go func() {
		for _, chunk := range []string{"PA", "ID:5", "0\r", "\nPAID:120\r\nPAYMENT_", "COMPLETE\r\n"} {
			_, _ = dev.Write([]byte(chunk))
		}
	}()

	assert.Equal(t, "PAID:50", nextLine(t, l))
	assert.Equal(t, "PAID:120", nextLine(t, l))
	assert.Equal(t, "PAYMENT_COMPLETE", nextLine(t, l))
}

func TestLinkSendWritesLine(t *testing.T) {
	o := newPipeOpener(0)
	l, stop := startLink(t, o)
	defer stop()

	dev := nextDevice(t, o)
	require.Eventually(t, l.Connected, time.Second, time.Millisecond)

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(dev).ReadString('\n')
		got <- line
	}()

	require.NoError(t, l.Send([]byte("B2,3#20\r\n")))
	select {
	case line := <-got:
		assert.Equal(t, "B2,3#20\r\n", line)
	case <-time.After(2 * time.Second):
		t.Fatal("device never received the command")
	}
}

func TestLinkSendWithoutConnection(t *testing.T) {
	l := New(newPipeOpener(0).open)

	err := l.Send([]byte("N0#0\r\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	var le *domain.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "write", le.Op)
}

func TestLinkReportsOpenFailureAndRetries(t *testing.T) {
	o := newPipeOpener(2)
	l, stop := startLink(t, o)
	defer stop()

	for i := 0; i < 2; i++ {
		err := nextErr(t, l)
		var le *domain.LinkError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "open", le.Op)
	}

	dev := nextDevice(t, o)
	go func() { _, _ = dev.Write([]byte("READY\r\n")) }()
	assert.Equal(t, "READY", nextLine(t, l))
}

func TestLinkReconnectsAfterDeviceRemoved(t *testing.T) {
	o := newPipeOpener(0)
	l, stop := startLink(t, o)
	defer stop()

	first := nextDevice(t, o)
	require.NoError(t, first.Close())

	err := nextErr(t, l)
	var le *domain.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "read", le.Op)

	second := nextDevice(t, o)
	go func() { _, _ = second.Write([]byte("PAID:10\r\n")) }()
	assert.Equal(t, "PAID:10", nextLine(t, l))
}

func TestLinkSendGivesUpOnStalledDevice(t *testing.T) {
	o := newPipeOpener(0)
	l, stop := startLink(t, o, WithWriteTimeout(50*time.Millisecond))
	defer stop()

	// Never reads, so the write blocks
	stalled := nextDevice(t, o)
	defer func() { _ = stalled.Close() }()
	require.Eventually(t, l.Connected, time.Second, time.Millisecond)

	start := time.Now()
	err := l.Send([]byte("C1#5\r\n"))
	assert.Less(t, time.Since(start), time.Second)

	var le *domain.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "write", le.Op)
	assert.ErrorIs(t, err, domain.ErrWriteTimeout)

	// The stalled port is dropped and the link reopens the device
	fresh := nextDevice(t, o)
	defer func() { _ = fresh.Close() }()
	require.Eventually(t, l.Connected, time.Second, time.Millisecond)
	go func() { _, _ = fresh.Read(make([]byte, 16)) }()
	require.NoError(t, l.Send([]byte("C1#5\r\n")))
}

func TestLinkRunStopsWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	o := newPipeOpener(0)
	l, stop := startLink(t, o)
	dev := nextDevice(t, o)
	require.Eventually(t, l.Connected, time.Second, time.Millisecond)

	stop()
	_ = dev.Close()

	_, open := <-l.Lines()
	assert.False(t, open, "lines channel should be closed after Run returns")
	assert.False(t, l.Connected())
}
