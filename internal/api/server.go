// Package api implements the HTTP surface: the REST chat endpoint,
// health and banner endpoints, and the WebSocket mount.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mindviza/mindviza/internal/buildinfo"
	"github.com/mindviza/mindviza/internal/checkpoint"
	"github.com/mindviza/mindviza/internal/config"
	"github.com/mindviza/mindviza/internal/memory"
	"github.com/mindviza/mindviza/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	processor   *session.TurnProcessor
	curator     session.Curator
	checkpoints *checkpoint.Store
	defaults    config.RestDefaults
	wsHandler   http.Handler
	logger      *slog.Logger
	server      *http.Server
}

// NewServer creates an API server. wsHandler is mounted at /ws/chat.
func NewServer(address string, port int, processor *session.TurnProcessor, curator session.Curator,
	checkpoints *checkpoint.Store, defaults config.RestDefaults, wsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:     address,
		port:        port,
		processor:   processor,
		curator:     curator,
		checkpoints: checkpoints,
		defaults:    defaults,
		wsHandler:   wsHandler,
		logger:      logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	if s.wsHandler != nil {
		mux.Handle("GET /ws/chat", s.wsHandler)
	}

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.withLogging(mux),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: WebSocket sessions outlive any sane value.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the REST chat request body.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the REST chat reply.
type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

// handleChat runs one exchange under the server's fixed REST identity.
// The endpoint carries no credential and no quota; it exists for
// integrations and smoke tests, not end users.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = s.defaults.ThreadID
	}

	sess := session.NewSession(s.defaults.Identity, threadID)

	var thread *checkpoint.Thread
	if s.checkpoints != nil {
		var err error
		thread, err = s.checkpoints.Acquire(r.Context(), threadID, s.defaults.Identity)
		if err != nil {
			s.logger.Error("checkpoint acquire failed", "thread", threadID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		defer thread.Close()

		turns, err := thread.History(r.Context())
		if err != nil {
			s.logger.Error("checkpoint history failed", "thread", threadID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		msgs := make([]session.Message, len(turns))
		for i, t := range turns {
			msgs[i] = session.Message{Role: t.Role, Content: t.Content, Timestamp: t.CreatedAt}
		}
		sess.SetHistory(msgs)
	}

	reply, err := s.processor.Process(r.Context(), sess, req.Message)
	if err != nil {
		s.logger.Warn("chat turn failed", "thread", threadID, "error", err)
		http.Error(w, "failed to process message", http.StatusBadGateway)
		return
	}

	if thread != nil {
		now := time.Now()
		if err := thread.Append(r.Context(), "user", req.Message, now); err != nil {
			s.logger.Warn("checkpoint append failed", "thread", threadID, "error", err)
		} else if err := thread.Append(r.Context(), "assistant", reply, now); err != nil {
			s.logger.Warn("checkpoint append failed", "thread", threadID, "error", err)
		}
	}

	if s.curator != nil {
		history := sess.History()
		msgs := make([]memory.TurnMessage, len(history))
		for i, h := range history {
			msgs[i] = memory.TurnMessage{Role: h.Role, Content: h.Content}
		}
		go s.curator.Curate(context.WithoutCancel(r.Context()), sess.Identity, threadID, msgs)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{Response: reply, ThreadID: threadID}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "all good here"}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "MindViza",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}
