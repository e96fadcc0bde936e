// Package httpserver exposes the service over HTTP: the WebSocket capture
// endpoint, the project-generation API, health probes, and Prometheus
// metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/devdraft-ai/devdraft/internal/archive"
	"github.com/devdraft-ai/devdraft/internal/config"
	"github.com/devdraft-ai/devdraft/internal/generate"
	"github.com/devdraft-ai/devdraft/internal/health"
	"github.com/devdraft-ai/devdraft/internal/observe"
	"github.com/devdraft-ai/devdraft/internal/session"
)

// Config wires the server's collaborators.
type Config struct {
	// Addr is the TCP listen address (e.g. ":8080").
	Addr string

	// AllowedOrigins lists WebSocket origin patterns. Empty allows any
	// origin.
	AllowedOrigins []string

	// TLS enables HTTPS when non-nil.
	TLS *config.TLSConfig

	// NewSession constructs a fresh capture session controller for each
	// WebSocket connection.
	NewSession func() *session.Controller

	// Generator serves /api/generate. Nil when no generation backend is
	// configured; requests then get a backend-unavailable response.
	Generator *generate.Pipeline

	// Archive persists finished specifications and generated projects.
	// May be nil; archiving is best-effort either way.
	Archive archive.Store

	// Health serves the probe endpoints. May be nil.
	Health *health.Handler

	// Metrics may be nil.
	Metrics *observe.Metrics
}

// Server is the HTTP front of the service. Create with New, run with Start,
// stop with Shutdown.
type Server struct {
	cfg Config
	srv *http.Server
}

// New builds a Server with its routes installed.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start listens and serves until Shutdown is called. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	var err error
	if s.cfg.TLS != nil {
		slog.Info("https server listening", "addr", s.cfg.Addr)
		err = s.srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		err = s.srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response body", "error", err)
	}
}
