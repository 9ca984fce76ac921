package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AgentWireHQ/agentwire/engine"
	"github.com/AgentWireHQ/agentwire/events"
	"github.com/AgentWireHQ/agentwire/hitl"
	"github.com/AgentWireHQ/agentwire/pipeline"
	"github.com/AgentWireHQ/agentwire/session"
	"github.com/AgentWireHQ/agentwire/stream"
	"github.com/AgentWireHQ/agentwire/types"
)

const persistTimeout = 10 * time.Second

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chat request: %w", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("at least one message is required"))
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	history := s.loadHistory(r.Context(), conversationID)
	history = append(history, req.Messages...)

	run, err := s.cfg.Engine.Run(r.Context(), engine.RunRequest{
		ConversationID: conversationID,
		Messages:       history,
		Params:         req.Params,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("start run: %w", err))
		return
	}

	ctrl := hitl.NewController(run.ID(), run.Resume,
		hitl.WithAwaitHook(func(ctx context.Context, runID string, pending hitl.Pending) error {
			if s.cfg.Store == nil {
				return nil
			}
			return s.cfg.Store.SavePendingInput(ctx, session.PendingInputRecord{
				RunID:          runID,
				ConversationID: conversationID,
				ResponseType:   pending.ResponseType,
				AwaitingSince:  pending.AwaitingSince,
			})
		}),
		hitl.WithResumeHook(func(ctx context.Context, runID string, _ hitl.Pending) error {
			if s.cfg.Store == nil {
				return nil
			}
			err := s.cfg.Store.DeletePendingInput(ctx, runID)
			if errors.Is(err, session.ErrNotFound) {
				return nil
			}
			return err
		}),
	)
	s.registerRun(ctrl)
	defer s.unregisterRun(run.ID())

	enc, err := stream.NewEncoder(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	stopKeepAlive := enc.StartKeepAlive(s.cfg.KeepAliveInterval)
	defer stopKeepAlive()

	result, runErr := pipeline.Run(r.Context(), run, enc, pipeline.RunConfig{
		Transformers:      s.buildTransformers(),
		InlineAnnotations: s.cfg.InlineAnnotations,
		Suggester:         s.cfg.Suggester,
		Controller:        ctrl,
		Observer:          s.cfg.Observer,
		ConversationID:    conversationID,
	})
	if runErr != nil {
		// Already streamed as a terminal error record, or the client left.
		log.Printf("run %s failed: %v", run.ID(), runErr)
		s.persistHistory(conversationID, history)
		return
	}

	reply := types.ChatMessage{Role: types.RoleAssistant, Content: result.FinalText}
	for _, artifact := range result.Artifacts {
		reply.Annotations = append(reply.Annotations, types.NewArtifactAnnotation(artifact))
	}
	if len(result.Sources) > 0 {
		reply.Annotations = append(reply.Annotations, types.NewSourcesAnnotation(result.Sources))
	}
	s.persistHistory(conversationID, append(history, reply))
}

// buildTransformers assembles a fresh chain per request; transformers carry
// per-run state and must never outlive the request.
func (s *Server) buildTransformers() []pipeline.Transformer {
	var artifactOpts []pipeline.ArtifactOption
	if s.cfg.ArtifactToolName != "" {
		artifactOpts = append(artifactOpts, pipeline.WithArtifactToolName(s.cfg.ArtifactToolName))
	}
	var sourceOpts []pipeline.SourceNodesOption
	if s.cfg.SourceToolName != "" {
		sourceOpts = append(sourceOpts, pipeline.WithSourceToolName(s.cfg.SourceToolName))
	}
	return []pipeline.Transformer{
		pipeline.NewNarrationTransformer(),
		pipeline.NewArtifactTransformer(artifactOpts...),
		pipeline.NewSourceNodesTransformer(sourceOpts...),
	}
}

func (s *Server) loadHistory(ctx context.Context, conversationID string) []types.ChatMessage {
	if s.cfg.Store == nil {
		return nil
	}
	conv, err := s.cfg.Store.LoadConversation(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("load conversation %s: %v", conversationID, err)
		}
		return nil
	}
	return conv.Messages
}

// persistHistory saves under its own context: the request context is usually
// canceled by the time the stream has closed.
func (s *Server) persistHistory(conversationID string, messages []types.ChatMessage) {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	err := s.cfg.Store.SaveConversation(ctx, session.ConversationRecord{
		ConversationID: conversationID,
		Messages:       messages,
	})
	if err != nil {
		log.Printf("save conversation %s: %v", conversationID, err)
	}
}

func (s *Server) handleChatSubresources(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/chat/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 2 && parts[1] == "resume" {
		s.handleResume(w, r, parts[0])
		return
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	var body struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid resume payload: %w", err))
		return
	}
	resp, err := events.DecodeHumanResponse(body.Type, body.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctrl, ok := s.lookupRun(runID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %q not found", runID))
		return
	}
	if err := ctrl.Resume(r.Context(), resp); err != nil {
		switch {
		case errors.Is(err, hitl.ErrNoPendingInput), errors.Is(err, hitl.ErrResponseMismatch):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(ctrl.State())})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	conversationID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/conversations/"), "/")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("conversation id is required"))
		return
	}
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("conversation store not configured"))
		return
	}
	conv, err := s.cfg.Store.LoadConversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("conversation %q not found", conversationID))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
