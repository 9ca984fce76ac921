// Package server exposes the chat pipeline over HTTP: a streaming chat
// endpoint, a resume endpoint for suspended runs, and conversation history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/hitl"
	"github.com/AgentWireHQ/agentwire/observe"
	"github.com/AgentWireHQ/agentwire/pipeline"
	"github.com/AgentWireHQ/agentwire/session"
)

type Config struct {
	Addr              string
	Engine            engine.Engine
	Store             session.Store
	Observer          observe.Sink
	Suggester         pipeline.QuestionSuggester
	ArtifactToolName  string
	SourceToolName    string
	InlineAnnotations bool
	KeepAliveInterval time.Duration
}

type Server struct {
	cfg  Config
	mux  *http.ServeMux
	http *http.Server
	once sync.Once

	runsMu sync.RWMutex
	runs   map[string]*hitl.Controller
}

func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.Observer == nil {
		cfg.Observer = observe.NoopSink{}
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 15 * time.Second
	}
	s := &Server{
		cfg:  cfg,
		mux:  http.NewServeMux(),
		runs: make(map[string]*hitl.Controller),
	}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/chat", s.handleChat)
	s.mux.HandleFunc("/api/v1/chat/", s.handleChatSubresources)
	s.mux.HandleFunc("/api/v1/conversations/", s.handleConversation)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.mux
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	log.Printf("listening on %s", s.cfg.Addr)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, gracefully stopping...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		log.Println("server stopped")
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
	})
	return outErr
}

func (s *Server) registerRun(ctrl *hitl.Controller) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.runs[ctrl.RunID()] = ctrl
}

func (s *Server) unregisterRun(runID string) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	delete(s.runs, runID)
}

func (s *Server) lookupRun(runID string) (*hitl.Controller, bool) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	ctrl, ok := s.runs[runID]
	return ctrl, ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
