// Package session defines persistence for chat conversations and for the
// pending-input correlation records created when a run suspends for human
// input. Backends live in the memory, sqlite, and redis subpackages.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/AgentWireHQ/agentwire/types"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrConflict = errors.New("session: conflict")
)

// ConversationRecord is one persisted chat history. Messages carry their
// annotations, so a later turn can recover the last artifact as its edit
// baseline.
type ConversationRecord struct {
	ConversationID string              `json:"conversationId"`
	Messages       []types.ChatMessage `json:"messages"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
	CreatedAt      *time.Time          `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time          `json:"updatedAt,omitempty"`
}

// PendingInputRecord correlates a suspended run with the response type that
// may resume it. At most one exists per run.
type PendingInputRecord struct {
	RunID          string         `json:"runId"`
	ConversationID string         `json:"conversationId"`
	ResponseType   string         `json:"responseEventType"`
	Payload        map[string]any `json:"payload,omitempty"`
	AwaitingSince  time.Time      `json:"awaitingSince"`
}

type ListConversationsQuery struct {
	Limit  int
	Offset int
}

// Store is the persistence contract shared by all backends. Saves are
// upserts keyed by conversation id; pending-input saves are create-only and
// return ErrConflict when a record for the run already exists.
type Store interface {
	SaveConversation(ctx context.Context, conv ConversationRecord) error
	LoadConversation(ctx context.Context, conversationID string) (ConversationRecord, error)
	ListConversations(ctx context.Context, query ListConversationsQuery) ([]ConversationRecord, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int, error)

	SavePendingInput(ctx context.Context, pending PendingInputRecord) error
	LoadPendingInput(ctx context.Context, runID string) (PendingInputRecord, error)
	DeletePendingInput(ctx context.Context, runID string) error
	DeletePendingInputsBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
