// Package server exposes the decision service over HTTP: a blocking
// approval endpoint for workflows, list/submit endpoints for human
// operators, and an SSE stream of run and decision events.
package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/stepward/stepward/internal/decision"
	"github.com/stepward/stepward/internal/streaming"
)

// Deps holds the dependencies for the decision service.
type Deps struct {
	Broker *decision.Broker
	Hub    streaming.EventHub
	Logger *slog.Logger
}

// Server serves the decision API.
type Server struct {
	deps Deps
}

// NewServer creates a Server. The broker is required.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for the decision service routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/human-decision", s.handleHumanDecision)
	mux.HandleFunc("GET /api/pending-decisions", s.handlePendingDecisions)
	mux.HandleFunc("POST /api/submit-decision", s.handleSubmitDecision)

	mux.HandleFunc("GET /sse/events", s.handleSSE)

	return mux
}
