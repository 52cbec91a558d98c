// Package api serves the kiosk front end and the attendant admin screens.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/gateway"
	"github.com/kidzoona/kiosk/internal/session"
)

// Charger runs one payment to completion
type Charger interface {
	Charge(ctx context.Context, req domain.ChargeRequest, timeout time.Duration, settle gateway.SettleFunc) (gateway.Result, error)
}

// StatusSource reports the registry's progress
type StatusSource interface {
	Status() session.Status
}

// Registrations is the persistence the handlers need
type Registrations interface {
	Create(ctx context.Context, reg *domain.Registration) error
	List(ctx context.Context) ([]domain.Registration, error)
	Checkout(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// LinkState reports whether the device is attached
type LinkState interface {
	Connected() bool
}

// Deps are the collaborators behind the routes
type Deps struct {
	Charger       Charger
	Status        StatusSource
	Registrations Registrations
	Link          LinkState
}

// Config holds HTTP behaviour settings
type Config struct {
	ChargeTimeout time.Duration
	RateLimit     int // requests per minute per IP, 0 disables
	StaticDir     string
}

// Server is the kiosk HTTP API
type Server struct {
	deps   Deps
	cfg    Config
	log    *zap.Logger
	router *chi.Mux
}

// New builds the router
func New(deps Deps, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, log: log}
	s.router = s.routes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/payment-status", s.handlePaymentStatus)
		r.Post("/register", s.handleRegister)

		r.Route("/admin/registrations", func(r chi.Router) {
			r.Get("/", s.handleListRegistrations)
			r.Put("/checkout/{id}", s.handleCheckout)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	if s.cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown incomplete", zap.Error(err))
		_ = srv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
