package output

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/kidzoona/kiosk/internal/domain"
)

// SchemaVersion is bumped whenever an NDJSON record changes shape
const SchemaVersion = 1

// ErrorOutput is the NDJSON error record
type ErrorOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	Hint          string `json:"hint,omitempty"`
}

// QuoteOutput is the NDJSON price quote record
type QuoteOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	PlaytimeFee   int    `json:"playtime_fee"`
	SocksFee      int    `json:"socks_fee"`
	Total         int    `json:"total"`
	Pulses        int    `json:"pulses"`
	Remainder     int    `json:"remainder,omitempty"`
	Command       string `json:"command"`
}

// ChargeOutput is the NDJSON record for a finished charge
type ChargeOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Expected      int    `json:"expected"`
	Paid          int    `json:"paid"`
	Command       string `json:"command"`
	Error         string `json:"error,omitempty"`
}

// TicketOutput wraps a registration
type TicketOutput struct {
	Type          string               `json:"type"`
	SchemaVersion int                  `json:"schemaVersion"`
	Registration  *domain.Registration `json:"registration"`
}

// StatusOutput is one payment-status sample
type StatusOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Timestamp     string `json:"timestamp"`
	Active        bool   `json:"active"`
	SessionID     string `json:"session_id,omitempty"`
	Expected      int    `json:"expected"`
	Paid          int    `json:"paid"`
	Queued        int    `json:"queued"`
}

// InfoOutput is a free-form notice
type InfoOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Message       string `json:"message"`
	Addr          string `json:"addr,omitempty"`
	Device        string `json:"device,omitempty"`
}

// NDJSONWriter writes one JSON object per line
type NDJSONWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewNDJSONWriter creates a new NDJSON writer
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{encoder: json.NewEncoder(w)}
}

func (w *NDJSONWriter) encode(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(v)
}

// WriteError writes an error record
func (w *NDJSONWriter) WriteError(code, message string, hint ...string) error {
	out := ErrorOutput{
		Type:          "error",
		SchemaVersion: SchemaVersion,
		Code:          code,
		Message:       message,
	}
	if len(hint) > 0 {
		out.Hint = hint[0]
	}
	return w.encode(out)
}

// WriteQuote writes a price quote
func (w *NDJSONWriter) WriteQuote(q domain.Quote, command string) error {
	return w.encode(QuoteOutput{
		Type:          "quote",
		SchemaVersion: SchemaVersion,
		PlaytimeFee:   q.PlaytimeFee,
		SocksFee:      q.SocksFee,
		Total:         q.Total,
		Pulses:        q.Pulses,
		Remainder:     q.Remainder,
		Command:       command,
	})
}

// WriteCharge writes the outcome of a charge
func (w *NDJSONWriter) WriteCharge(out domain.Outcome, command string) error {
	rec := ChargeOutput{
		Type:          "charge",
		SchemaVersion: SchemaVersion,
		SessionID:     out.SessionID,
		Status:        string(out.Status),
		Expected:      out.Expected,
		Paid:          out.Paid,
		Command:       command,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	return w.encode(rec)
}

// WriteTickets writes one record per registration
func (w *NDJSONWriter) WriteTickets(regs []domain.Registration) error {
	for i := range regs {
		if err := w.encode(TicketOutput{Type: "ticket", SchemaVersion: SchemaVersion, Registration: &regs[i]}); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatus writes a payment-status sample
func (w *NDJSONWriter) WriteStatus(st Status, at time.Time) error {
	return w.encode(StatusOutput{
		Type:          "status",
		SchemaVersion: SchemaVersion,
		Timestamp:     at.UTC().Format(time.RFC3339),
		Active:        st.Active,
		SessionID:     st.SessionID,
		Expected:      st.Expected,
		Paid:          st.Paid,
		Queued:        st.Queued,
	})
}

// WriteInfo writes a notice
func (w *NDJSONWriter) WriteInfo(message string) error {
	return w.encode(InfoOutput{Type: "info", SchemaVersion: SchemaVersion, Message: message})
}

// WriteReady announces that the server is accepting requests
func (w *NDJSONWriter) WriteReady(addr, device string) error {
	return w.encode(InfoOutput{
		Type:          "ready",
		SchemaVersion: SchemaVersion,
		Message:       "kiosk ready",
		Addr:          addr,
		Device:        device,
	})
}
