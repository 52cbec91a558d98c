package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/output"
	"github.com/kidzoona/kiosk/internal/store"
)

// registerRequest is the kiosk registration form. Totals sent by the
// browser are ignored; the server prices the visit itself.
type registerRequest struct {
	Children     []domain.Child    `json:"children"`
	Guardians    []domain.Guardian `json:"guardians"`
	ChildCount   int               `json:"childCount"`
	AdultCount   int               `json:"adultCount"`
	PlaytimeRate int               `json:"playtimeRate"`
	Socks        struct {
		KidsQty   int `json:"kidsQty"`
		AdultsQty int `json:"adultsQty"`
	} `json:"socks"`
}

func (r registerRequest) charge() domain.ChargeRequest {
	return domain.ChargeRequest{
		PlaytimeRate: r.PlaytimeRate,
		ChildCount:   r.ChildCount,
		KidsSockQty:  r.Socks.KidsQty,
		AdultSockQty: r.Socks.AdultsQty,
	}
}

type registerResponse struct {
	Success      bool   `json:"success"`
	ID           string `json:"id,omitempty"`
	TicketNumber int    `json:"ticketNumber,omitempty"`
	Status       string `json:"status"`
	Expected     int    `json:"expected"`
	Paid         int    `json:"paid"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.deps.Link != nil && s.deps.Link.Connected()
	code := http.StatusOK
	status := "ok"
	if !connected {
		code = http.StatusServiceUnavailable
		status = "device_disconnected"
	}
	writeJSON(w, code, map[string]any{"status": status, "device": connected})
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Status.Status()
	writeJSON(w, http.StatusOK, output.Status{
		Active:    st.Active,
		SessionID: st.SessionID,
		Expected:  st.Expected,
		Paid:      st.Paid,
		Queued:    st.QueueDepth,
	})
}

// handleRegister charges the visitor and, once the device confirms, stores
// the registration and answers with its ticket number.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var saved domain.Registration
	settle := func(ctx context.Context, out domain.Outcome) (int, error) {
		reg := domain.Registration{
			ChildCount:     req.ChildCount,
			AdultCount:     req.AdultCount,
			Children:       req.Children,
			Guardians:      req.Guardians,
			PlaytimeRate:   req.PlaytimeRate,
			Socks:          domain.Socks{KidsQty: req.Socks.KidsQty, AdultsQty: req.Socks.AdultsQty},
			GrandTotal:     out.Expected,
			AmountPaid:     out.Paid,
			PaymentSession: out.SessionID,
		}
		reg.Socks.TotalPrice = out.Expected - req.PlaytimeRate*req.ChildCount
		if err := s.deps.Registrations.Create(ctx, &reg); err != nil {
			return 0, err
		}
		saved = reg
		return reg.TicketNumber, nil
	}

	res, err := s.deps.Charger.Charge(r.Context(), req.charge(), s.cfg.ChargeTimeout, settle)
	log := s.log.With(zap.String("session_id", res.Outcome.SessionID))
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrNonDivisible):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrDetached), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Nobody is listening; the outcome is logged by the gateway.
		log.Info("registration client went away", zap.Error(err))
		return
	case err != nil:
		log.Error("charge failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := res.Outcome
	body := registerResponse{Status: string(out.Status), Expected: out.Expected, Paid: out.Paid}
	if out.Err != nil {
		body.Error = out.Err.Error()
	}

	switch out.Status {
	case domain.OutcomeConfirmed, domain.OutcomeOverpaid:
		if res.SettleErr != nil {
			body.Error = "payment received but registration not saved: " + res.SettleErr.Error()
			writeJSON(w, http.StatusInternalServerError, body)
			return
		}
		body.Success = true
		body.ID = saved.ID
		body.TicketNumber = res.Ticket
		writeJSON(w, http.StatusCreated, body)
	case domain.OutcomeUnderpaid:
		writeJSON(w, http.StatusPaymentRequired, body)
	case domain.OutcomeTimedOut:
		writeJSON(w, http.StatusGatewayTimeout, body)
	case domain.OutcomeCancelled:
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.deps.Registrations.List(r.Context())
	if err != nil {
		s.log.Error("list registrations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch data")
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "Failed to update status", s.deps.Registrations.Checkout)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "Failed to delete", s.deps.Registrations.Delete)
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, failMsg string, op func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	err := op(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.log.Error(failMsg, zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, failMsg)
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
