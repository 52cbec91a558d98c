package tui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidzoona/kiosk/internal/output"
)

type fakeFetcher struct {
	st  output.Status
	err error
}

func (f fakeFetcher) Fetch(context.Context) (output.Status, error) { return f.st, f.err }

func TestPollProducesStatus(t *testing.T) {
	m := New(fakeFetcher{st: output.Status{Active: true, Expected: 200, Paid: 50}}, "http://x", time.Second)

	msg := m.poll()()
	sm, ok := msg.(statusMsg)
	require.True(t, ok)
	assert.Equal(t, 50, sm.status.Paid)

	m2 := New(fakeFetcher{err: errors.New("connection refused")}, "http://x", time.Second)
	_, ok = m2.poll()().(errMsg)
	assert.True(t, ok)
}

func TestViewActiveSession(t *testing.T) {
	m := New(nil, "http://kiosk:3000", time.Second)
	next, cmd := m.Update(statusMsg{
		status: output.Status{Active: true, SessionID: "s-42", Expected: 200, Paid: 100, Queued: 1},
		at:     time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local),
	})
	assert.NotNil(t, cmd, "a status schedules the next poll")

	view := next.View()
	assert.Contains(t, view, "Waiting for payment")
	assert.Contains(t, view, "s-42")
	assert.Contains(t, view, "100 / 200")
	assert.Contains(t, view, "queued: 1")
	assert.Contains(t, view, "updated 10:00:00")
}

func TestViewIdleAndError(t *testing.T) {
	m := New(nil, "http://kiosk:3000", time.Second)
	assert.Contains(t, m.View(), "connecting")

	next, _ := m.Update(statusMsg{status: output.Status{}, at: time.Now()})
	assert.Contains(t, next.View(), "Idle")

	next, _ = next.Update(errMsg{errors.New("connection refused")})
	assert.Contains(t, next.View(), "Server unreachable: connection refused")
}

func TestQuitKeys(t *testing.T) {
	m := New(nil, "", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat("-", barWidth)+"]", progressBar(0, 200))
	assert.Equal(t, "["+strings.Repeat("#", barWidth/2)+strings.Repeat("-", barWidth/2)+"]", progressBar(100, 200))
	assert.Equal(t, "["+strings.Repeat("#", barWidth)+"]", progressBar(300, 200))
	assert.Equal(t, "["+strings.Repeat("-", barWidth)+"]", progressBar(10, 0))
}

func TestStatusClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payment-status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"active":true,"session_id":"s-1","expected":200,"paid":150,"queued":0}`))
	}))
	defer srv.Close()

	st, err := NewStatusClient(srv.URL + "/").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, output.Status{Active: true, SessionID: "s-1", Expected: 200, Paid: 150}, st)
}

func TestStatusClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewStatusClient(srv.URL).Fetch(context.Background())
	assert.ErrorContains(t, err, "HTTP 429")
}
