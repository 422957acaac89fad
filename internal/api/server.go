//
//
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/radio-control/rcpilot/internal/auth"
	"github.com/radio-control/rcpilot/internal/config"
)

// Version is reported by /health.
const Version = "1.0.0"

// Server represents the HTTP API server.
type Server struct {
	control        ControlPort
	telemetryHub   TelemetryPort
	authMiddleware *auth.Middleware
	cfg            config.APIConfig
	logger         *slog.Logger
	startTime      time.Time

	router *mux.Router

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// NewServer creates an API server. A nil auth middleware disables token
// checks.
func NewServer(control ControlPort, telemetryHub TelemetryPort, authMiddleware *auth.Middleware, cfg config.APIConfig, logger *slog.Logger) *Server {
	if authMiddleware == nil {
		authMiddleware = auth.NewMiddleware(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		control:        control,
		telemetryHub:   telemetryHub,
		authMiddleware: authMiddleware,
		cfg:            cfg,
		logger:         logger.With(slog.String("component", "api")),
		startTime:      time.Now(),
		router:         mux.NewRouter(),
	}
	s.RegisterRoutes(s.router)
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Stop. It returns nil after Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. A server already stopped closes ln and
// returns at once.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ln.Close()
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("api listening", slog.String("addr", ln.Addr().String()), slog.Bool("auth", s.authMiddleware.Enabled()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.stopped = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
