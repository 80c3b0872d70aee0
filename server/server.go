// Package server exposes the receipt pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/creastat/receipts/purchase"
	"github.com/creastat/receipts/session"
	"github.com/creastat/receipts/supabase"
)

// DefaultMaxBodyBytes matches the largest payload the chat platform sends.
const DefaultMaxBodyBytes int64 = 25 << 20

// PurchaseReader looks up archived purchases by session id.
type PurchaseReader interface {
	GetPurchase(ctx context.Context, sessionID string) (*supabase.Purchase, error)
}

// Options configures the HTTP server. Zero values take defaults;
// GET /purchases/{sessionId} is only routed when Purchases is set.
type Options struct {
	Port         int
	MaxBodyBytes int64
	Timeout      time.Duration
	Logger       *log.Logger
	Purchases    PurchaseReader
}

// Server serves the receipt pipeline. Router is exported for tests.
type Server struct {
	Router    *chi.Mux
	Port      int
	logger    *log.Logger
	orch      *purchase.Orchestrator
	ledger    *session.Ledger
	purchases PurchaseReader
	http      *http.Server
}

// New builds the router around orch and ledger.
func New(orch *purchase.Orchestrator, ledger *session.Ledger, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		Router:    chi.NewRouter(),
		Port:      opts.Port,
		logger:    logger.With("component", "http"),
		orch:      orch,
		ledger:    ledger,
		purchases: opts.Purchases,
	}

	r := s.Router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(middleware.Recoverer)
	r.Use(BodyLimitMiddleware(opts.MaxBodyBytes))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "receiptd")
	})

	r.Get("/", s.handleHealth)
	r.Get("/test-pixel", s.handleTestPixel)
	r.Post("/kinbox/parse", s.handleParse)
	r.Post("/kinbox/finalizar", s.handleFinalize)
	r.Get("/sessions/{customerKey}", s.handleGetSession)
	if s.purchases != nil {
		r.Get("/purchases/{sessionId}", s.handleGetPurchase)
	}

	return s
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.Port)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	return s.http.Shutdown(shutdownCtx)
}
