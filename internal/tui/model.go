// Package tui is the attendant's live view of the coin acceptor.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kidzoona/kiosk/internal/output"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const barWidth = 30

type statusMsg struct {
	status output.Status
	at     time.Time
}

type errMsg struct{ err error }

type tickMsg time.Time

// Model polls the payment status and renders it
type Model struct {
	fetch    Fetcher
	interval time.Duration
	target   string

	spinner spinner.Model
	status  output.Status
	err     error
	updated time.Time
	width   int
}

// New creates a monitor model
func New(fetch Fetcher, target string, interval time.Duration) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = warnStyle
	return Model{
		fetch:    fetch,
		interval: interval,
		target:   target,
		spinner:  s,
	}
}

// Init starts the spinner and the first poll
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m Model) poll() tea.Cmd {
	fetch := m.fetch
	timeout := m.interval
	if timeout < time.Second {
		timeout = time.Second
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := fetch.Fetch(ctx)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{status: st, at: time.Now()}
	}
}

func (m Model) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statusMsg:
		m.status = msg.status
		m.updated = msg.at
		m.err = nil
		return m, m.schedule()
	case errMsg:
		m.err = msg.err
		return m, m.schedule()
	case tickMsg:
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the monitor
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Kiosk payment monitor"))
	b.WriteString(dimStyle.Render("  " + m.target))
	b.WriteString("\n\n")

	var body string
	switch {
	case m.err != nil:
		body = errStyle.Render("Server unreachable: " + m.err.Error())
	case m.updated.IsZero():
		body = m.spinner.View() + " connecting..."
	case m.status.Active:
		body = fmt.Sprintf("%s Waiting for payment  %s\n%s %s\n%s",
			m.spinner.View(),
			dimStyle.Render(m.status.SessionID),
			progressBar(m.status.Paid, m.status.Expected),
			amountStyle(m.status.Paid, m.status.Expected).Render(fmt.Sprintf("%d / %d", m.status.Paid, m.status.Expected)),
			dimStyle.Render(fmt.Sprintf("queued: %d", m.status.Queued)),
		)
	default:
		body = okStyle.Render("Idle") + dimStyle.Render(fmt.Sprintf("  queued: %d", m.status.Queued))
	}
	b.WriteString(boxStyle.Render(body))
	b.WriteString("\n")

	footer := "q quit  r refresh"
	if !m.updated.IsZero() {
		footer += "  updated " + m.updated.Format("15:04:05")
	}
	b.WriteString(dimStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func amountStyle(paid, expected int) lipgloss.Style {
	switch {
	case expected > 0 && paid >= expected:
		return okStyle
	case paid > 0:
		return warnStyle
	default:
		return dimStyle
	}
}

func progressBar(paid, expected int) string {
	filled := 0
	if expected > 0 {
		filled = paid * barWidth / expected
	}
	filled = max(0, min(filled, barWidth))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}
