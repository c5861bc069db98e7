// Package api exposes the assistant over HTTP: a single multipart chat
// endpoint plus health probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docent-ai/docent/internal/facts"
	"github.com/docent-ai/docent/internal/history"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Agent       answerer         // Required
	Ingestor    documentIngestor // Required
	Facts       *facts.Store     // Required
	History     *history.Store   // Required
	CORSOrigins []string
	Ready       func(ctx context.Context) error // Optional backing-store check for /ready
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.Facts == nil {
		return nil, errors.New("facts store is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{
		agent:    cfg.Agent,
		ingestor: cfg.Ingestor,
		facts:    cfg.Facts,
		history:  cfg.History,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", ch.chat)

	// Middleware stack, outermost first: Recovery → Logging → CORS → Routes.
	var handler http.Handler = mux
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Ready, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
