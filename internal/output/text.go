package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/kidzoona/kiosk/internal/domain"
)

// TextWriter writes human-readable output
type TextWriter struct {
	w io.Writer
}

// NewTextWriter creates a new text writer
func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

// WriteError writes "Error [CODE]: message (hint: ...)"
func (t *TextWriter) WriteError(code, message string, hint ...string) error {
	if len(hint) > 0 && hint[0] != "" {
		_, err := fmt.Fprintf(t.w, "Error [%s]: %s (hint: %s)\n", code, message, hint[0])
		return err
	}
	_, err := fmt.Fprintf(t.w, "Error [%s]: %s\n", code, message)
	return err
}

// WriteQuote writes the price breakdown and device command
func (t *TextWriter) WriteQuote(q domain.Quote, command string) error {
	_, err := fmt.Fprintf(t.w, "Playtime: %d\nSocks:    %d\nTotal:    %d\nPulses:   %d\nCommand:  %s\n",
		q.PlaytimeFee, q.SocksFee, q.Total, q.Pulses, command)
	if err == nil && q.Remainder > 0 {
		_, err = fmt.Fprintf(t.w, "Warning: %d not representable in pulses\n", q.Remainder)
	}
	return err
}

// WriteCharge writes the outcome of a charge
func (t *TextWriter) WriteCharge(out domain.Outcome, command string) error {
	_, err := fmt.Fprintf(t.w, "[%s] %s expected=%d paid=%d command=%s\n",
		out.Status, out.SessionID, out.Expected, out.Paid, command)
	if err == nil && out.Err != nil {
		_, err = fmt.Fprintf(t.w, "  reason: %s\n", out.Err)
	}
	return err
}

// WriteTickets renders registrations as a table
func (t *TextWriter) WriteTickets(regs []domain.Registration) error {
	if len(regs) == 0 {
		_, err := fmt.Fprintln(t.w, "No registrations")
		return err
	}

	table := tablewriter.NewWriter(t.w)
	table.Header("Ticket", "Registered", "Kids", "Adults", "Guardian", "Total", "Paid", "Status", "ID")
	for _, r := range regs {
		guardian := lo.FirstOr(lo.Map(r.Guardians, func(g domain.Guardian, _ int) string {
			return g.Name
		}), "-")
		row := []string{
			strconv.Itoa(r.TicketNumber),
			r.RegisteredAt.Local().Format("2006-01-02 15:04"),
			strconv.Itoa(r.ChildCount),
			strconv.Itoa(r.AdultCount),
			guardian,
			strconv.Itoa(r.GrandTotal),
			strconv.Itoa(r.AmountPaid),
			string(r.Status),
			r.ID,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteStatus writes one status line
func (t *TextWriter) WriteStatus(st Status, at time.Time) error {
	if !st.Active {
		_, err := fmt.Fprintf(t.w, "[%s] idle queued=%d\n", at.Format("15:04:05"), st.Queued)
		return err
	}
	_, err := fmt.Fprintf(t.w, "[%s] %s paid=%d/%d queued=%d\n",
		at.Format("15:04:05"), st.SessionID, st.Paid, st.Expected, st.Queued)
	return err
}

// WriteInfo writes a notice
func (t *TextWriter) WriteInfo(message string) error {
	_, err := fmt.Fprintln(t.w, message)
	return err
}

// WriteReady writes the startup banner
func (t *TextWriter) WriteReady(addr, device string) error {
	_, err := fmt.Fprintf(t.w, "Listening on %s (device %s)\nPress Ctrl+C to stop\n", addr, device)
	return err
}
