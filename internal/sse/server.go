package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courier-ai/courier/internal/observability"
)

// Processor handles one SSE request, emitting all events including the
// terminal done. Implemented by the agent loop.
type Processor interface {
	ProcessSSE(ctx context.Context, rc *RequestContext, em *Emitter, messages []RequestMessage) error
}

// Server exposes the SSE chat surface over HTTP.
type Server struct {
	processor Processor
	addr      string
	logger    *slog.Logger
	http      *http.Server
}

// NewServer creates a server delegating requests to the processor.
func NewServer(processor Processor, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		processor: processor,
		addr:      addr,
		logger:    logger.With("component", "sse"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("sse server listening", "addr", s.addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("sse server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid request body: %v"}`, err), http.StatusBadRequest)
		return
	}
	req.ApplyDefaults()

	if req.SessionID == "" {
		http.Error(w, `{"error":"session_id is required"}`, http.StatusBadRequest)
		return
	}
	if req.RequestID == "" {
		http.Error(w, `{"error":"request_id is required"}`, http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, `{"error":"message must not be empty"}`, http.StatusBadRequest)
		return
	}

	observability.SSERequests.WithLabelValues(req.AgentType).Inc()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := NewRequestContext(&req)
	em := NewEmitter(rc, w)

	switch req.AgentType {
	case AgentTypeAgent:
	case AgentTypeWorkflow:
		em.Error("workflow agent type is not yet implemented")
		em.Done()
		return
	default:
		em.Error(fmt.Sprintf("unknown agent type: %s", req.AgentType))
		em.Done()
		return
	}

	s.logger.Info("sse request",
		"session_id", rc.SessionID, "request_id", rc.RequestID, "stream", rc.Stream)

	// The request context is cancelled when the client disconnects,
	// aborting the in-flight provider call and tool executions.
	if err := s.processor.ProcessSSE(r.Context(), rc, em, req.Messages); err != nil {
		s.logger.Error("sse request failed", "request_id", rc.RequestID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
