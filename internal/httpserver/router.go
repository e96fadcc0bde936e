package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devdraft-ai/devdraft/internal/observe"
)

// routes assembles the request mux and wraps it with the tracing and metrics
// middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return observe.Middleware(s.cfg.Metrics)(mux)
}
