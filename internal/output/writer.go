// Package output renders command results as NDJSON for scripts or as text
// for the attendant.
package output

import (
	"io"
	"time"

	"github.com/kidzoona/kiosk/internal/domain"
)

// Status mirrors the payment-status endpoint body
type Status struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
	Expected  int    `json:"expected"`
	Paid      int    `json:"paid"`
	Queued    int    `json:"queued"`
}

// Writer is implemented by both output formats
type Writer interface {
	WriteError(code, message string, hint ...string) error
	WriteQuote(q domain.Quote, command string) error
	WriteCharge(out domain.Outcome, command string) error
	WriteTickets(regs []domain.Registration) error
	WriteStatus(st Status, at time.Time) error
	WriteInfo(message string) error
	WriteReady(addr, device string) error
}

// New picks a writer for format ("ndjson" or "text")
func New(format string, w io.Writer) Writer {
	if format == "ndjson" {
		return NewNDJSONWriter(w)
	}
	return NewTextWriter(w)
}
