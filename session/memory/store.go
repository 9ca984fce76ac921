// Package memory provides an in-process session store for tests and
// single-node development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AgentWireHQ/agentwire/session"
)

const defaultLimit = 50

type Store struct {
	mu            sync.RWMutex
	conversations map[string]session.ConversationRecord
	pending       map[string]session.PendingInputRecord
}

func New() *Store {
	return &Store{
		conversations: make(map[string]session.ConversationRecord),
		pending:       make(map[string]session.PendingInputRecord),
	}
}

var _ session.Store = (*Store)(nil)

func (s *Store) SaveConversation(_ context.Context, conv session.ConversationRecord) error {
	if conv.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	now := time.Now().UTC()
	if conv.UpdatedAt == nil {
		conv.UpdatedAt = &now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conv.ConversationID]; ok && conv.CreatedAt == nil {
		conv.CreatedAt = existing.CreatedAt
	}
	if conv.CreatedAt == nil {
		conv.CreatedAt = &now
	}
	s.conversations[conv.ConversationID] = conv
	return nil
}

func (s *Store) LoadConversation(_ context.Context, conversationID string) (session.ConversationRecord, error) {
	if conversationID == "" {
		return session.ConversationRecord{}, fmt.Errorf("conversation_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return session.ConversationRecord{}, session.ErrNotFound
	}
	return conv, nil
}

func (s *Store) ListConversations(_ context.Context, query session.ListConversationsQuery) ([]session.ConversationRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	all := make([]session.ConversationRecord, 0, len(s.conversations))
	for _, conv := range s.conversations {
		all = append(all, conv)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		left := time.Time{}
		if all[i].UpdatedAt != nil {
			left = *all[i].UpdatedAt
		}
		right := time.Time{}
		if all[j].UpdatedAt != nil {
			right = *all[j].UpdatedAt
		}
		return left.After(right)
	})

	if offset >= len(all) {
		return []session.ConversationRecord{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) DeleteConversation(_ context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return session.ErrNotFound
	}
	delete(s.conversations, conversationID)
	return nil
}

func (s *Store) DeleteConversationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, conv := range s.conversations {
		if conv.UpdatedAt != nil && conv.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) SavePendingInput(_ context.Context, pending session.PendingInputRecord) error {
	if pending.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if pending.AwaitingSince.IsZero() {
		pending.AwaitingSince = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[pending.RunID]; ok {
		return session.ErrConflict
	}
	s.pending[pending.RunID] = pending
	return nil
}

func (s *Store) LoadPendingInput(_ context.Context, runID string) (session.PendingInputRecord, error) {
	if runID == "" {
		return session.PendingInputRecord{}, fmt.Errorf("run_id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending, ok := s.pending[runID]
	if !ok {
		return session.PendingInputRecord{}, session.ErrNotFound
	}
	return pending, nil
}

func (s *Store) DeletePendingInput(_ context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[runID]; !ok {
		return session.ErrNotFound
	}
	delete(s.pending, runID)
	return nil
}

// PendingInputs returns a snapshot of every pending-input record.
func (s *Store) PendingInputs() []session.PendingInputRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.PendingInputRecord, 0, len(s.pending))
	for _, pending := range s.pending {
		out = append(out, pending)
	}
	return out
}

func (s *Store) DeletePendingInputsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for runID, pending := range s.pending {
		if pending.AwaitingSince.Before(cutoff) {
			delete(s.pending, runID)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Close() error { return nil }
