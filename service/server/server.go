package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// A transfer holds its request open through signing and confirmation, so the
// write timeout has to cover both.
const writeTimeout = 5 * time.Minute

// SessionService is the wallet session as seen by the HTTP layer.
// *wallet.Session implements it.
type SessionService interface {
	View() wallet.View
	Connect(ctx context.Context, silent bool) error
	SetPending(receiver, amount string)
	RefreshBalance(ctx context.Context)
	SendTransfer(ctx context.Context) (*wallet.TransferResult, error)
}

// NoticeSource yields user notices not yet shown. *wallet.NoticeBoard
// implements it.
type NoticeSource interface {
	Drain() []wallet.Notice
}

// Server represents the HTTP server for a wallet session.
type Server struct {
	addr     string
	session  SessionService
	notices  NoticeSource
	renderer *TemplateRenderer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server for session.
// The metrics is optional - if nil, the /metrics endpoint is not served.
func New(addr string, session SessionService, notices NoticeSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		session: session,
		notices: notices,
		metrics: m,
		logger:  logger,
	}
}

// WithTemplates adds the HTML page using embedded templates.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/session", "get_session", handleGetSession(s.session, s.notices, s.logger))
	route("POST /api/v1/session/connect", "connect", handleConnect(s.session, s.logger))
	route("PUT /api/v1/session/pending", "set_pending", handleSetPending(s.session, s.logger))
	route("POST /api/v1/session/balance", "refresh_balance", handleRefreshBalance(s.session, s.logger))
	route("POST /api/v1/session/transfer", "transfer", handleTransfer(s.session, s.logger))

	if s.renderer != nil {
		route("GET /{$}", "page", handleSessionPage(s.renderer, s.session, s.notices))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
