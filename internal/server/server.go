// Package server exposes the authoring platform over HTTP: assistant and
// rubric management, the tool catalogue and the completion endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ndaru/kirana/internal/store"
	"github.com/ndaru/kirana/pkg/connector"
	"github.com/ndaru/kirana/pkg/orchestrator"
)

// Options configures the HTTP server.
type Options struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	// DefaultModel is used when an assistant does not pin a model.
	DefaultModel string
}

// Server is the platform HTTP server.
type Server struct {
	options Options
	store   *store.Store
	engine  *orchestrator.Engine
	// conn is nil when no AI profile is configured; completion endpoints then
	// return the processed messages without a model reply.
	conn   connector.Connector
	server *http.Server
	logger zerolog.Logger

	upgrader websocket.Upgrader

	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new platform server.
func NewServer(options Options, st *store.Store, engine *orchestrator.Engine, conn connector.Connector, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 15 * time.Second
	}

	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("orchestration engine is required")
	}

	return &Server{
		options:   options,
		store:     st,
		engine:    engine,
		conn:      conn,
		logger:    logger,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /v1/tools", s.track(s.handleListTools))

	mux.HandleFunc("GET /v1/assistants", s.track(s.handleListAssistants))
	mux.HandleFunc("POST /v1/assistants", s.track(s.handleCreateAssistant))
	mux.HandleFunc("GET /v1/assistants/{id}", s.track(s.handleGetAssistant))
	mux.HandleFunc("PUT /v1/assistants/{id}", s.track(s.handleUpdateAssistant))
	mux.HandleFunc("DELETE /v1/assistants/{id}", s.track(s.handleDeleteAssistant))

	mux.HandleFunc("GET /v1/rubrics", s.track(s.handleListRubrics))
	mux.HandleFunc("POST /v1/rubrics", s.track(s.handleCreateRubric))
	mux.HandleFunc("GET /v1/rubrics/{id}", s.track(s.handleGetRubric))
	mux.HandleFunc("PUT /v1/rubrics/{id}", s.track(s.handleUpdateRubric))
	mux.HandleFunc("DELETE /v1/rubrics/{id}", s.track(s.handleDeleteRubric))

	mux.HandleFunc("POST /v1/assistants/{id}/completions", s.track(s.handleCompletion))
	mux.HandleFunc("GET /v1/assistants/{id}/completions/stream", s.track(s.handleCompletionStream))

	return mux
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown API server: %w", err)
		}
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// track rejects requests during shutdown and counts in-flight requests.
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
