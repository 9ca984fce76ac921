// Package sqlite persists sessions in an embedded SQLite database via the
// pure-Go modernc.org driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AgentWireHQ/agentwire/session"
	"github.com/AgentWireHQ/agentwire/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

var _ session.Store = (*Store)(nil)

func (s *Store) SaveConversation(ctx context.Context, conv session.ConversationRecord) error {
	if conv.ConversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	now := time.Now().UTC()
	if conv.CreatedAt == nil {
		conv.CreatedAt = &now
	}
	if conv.UpdatedAt == nil {
		conv.UpdatedAt = &now
	}
	if conv.Metadata == nil {
		conv.Metadata = map[string]any{}
	}

	messagesRaw, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	metaRaw, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	const q = `
INSERT INTO conversations (conversation_id, messages, metadata, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
  messages=excluded.messages,
  metadata=excluded.metadata,
  updated_at=excluded.updated_at;
`
	_, err = s.db.ExecContext(
		ctx,
		q,
		conv.ConversationID,
		string(messagesRaw),
		string(metaRaw),
		conv.CreatedAt.UTC().Format(time.RFC3339Nano),
		conv.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, conversationID string) (session.ConversationRecord, error) {
	if strings.TrimSpace(conversationID) == "" {
		return session.ConversationRecord{}, fmt.Errorf("conversation_id is required")
	}

	const q = `
SELECT conversation_id, messages, metadata, created_at, updated_at
FROM conversations
WHERE conversation_id = ?;
`
	var (
		conv        session.ConversationRecord
		messagesRaw string
		metadataRaw string
		createdRaw  string
		updatedRaw  string
	)
	err := s.db.QueryRowContext(ctx, q, conversationID).Scan(
		&conv.ConversationID,
		&messagesRaw,
		&metadataRaw,
		&createdRaw,
		&updatedRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.ConversationRecord{}, session.ErrNotFound
		}
		return session.ConversationRecord{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return decodeConversationRow(conv, messagesRaw, metadataRaw, createdRaw, updatedRaw)
}

func (s *Store) ListConversations(ctx context.Context, query session.ListConversationsQuery) ([]session.ConversationRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	const q = `
SELECT conversation_id, messages, metadata, created_at, updated_at
FROM conversations
ORDER BY updated_at DESC
LIMIT ? OFFSET ?;
`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]session.ConversationRecord, 0, limit)
	for rows.Next() {
		var (
			conv        session.ConversationRecord
			messagesRaw string
			metadataRaw string
			createdRaw  string
			updatedRaw  string
		)
		if err := rows.Scan(
			&conv.ConversationID,
			&messagesRaw,
			&metadataRaw,
			&createdRaw,
			&updatedRaw,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		decoded, err := decodeConversationRow(conv, messagesRaw, metadataRaw, createdRaw, updatedRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE conversation_id = ?;", conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		"DELETE FROM conversations WHERE updated_at < ?;",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale conversations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return int(affected), nil
}

func (s *Store) SavePendingInput(ctx context.Context, pending session.PendingInputRecord) error {
	if pending.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if pending.AwaitingSince.IsZero() {
		pending.AwaitingSince = time.Now().UTC()
	}
	if pending.Payload == nil {
		pending.Payload = map[string]any{}
	}

	payloadRaw, err := json.Marshal(pending.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal pending payload: %w", err)
	}

	const q = `
INSERT INTO pending_inputs (run_id, conversation_id, response_type, payload, awaiting_since)
VALUES (?, ?, ?, ?, ?);
`
	_, err = s.db.ExecContext(
		ctx,
		q,
		pending.RunID,
		pending.ConversationID,
		pending.ResponseType,
		string(payloadRaw),
		pending.AwaitingSince.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return session.ErrConflict
		}
		return fmt.Errorf("failed to save pending input: %w", err)
	}
	return nil
}

func (s *Store) LoadPendingInput(ctx context.Context, runID string) (session.PendingInputRecord, error) {
	if runID == "" {
		return session.PendingInputRecord{}, fmt.Errorf("run_id is required")
	}

	const q = `
SELECT run_id, conversation_id, response_type, payload, awaiting_since
FROM pending_inputs
WHERE run_id = ?;
`
	var (
		pending     session.PendingInputRecord
		payloadRaw  string
		awaitingRaw string
	)
	err := s.db.QueryRowContext(ctx, q, runID).Scan(
		&pending.RunID,
		&pending.ConversationID,
		&pending.ResponseType,
		&payloadRaw,
		&awaitingRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.PendingInputRecord{}, session.ErrNotFound
		}
		return session.PendingInputRecord{}, fmt.Errorf("failed to load pending input: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadRaw), &pending.Payload); err != nil {
		return session.PendingInputRecord{}, fmt.Errorf("failed to decode pending payload: %w", err)
	}
	pending.AwaitingSince, err = parseRequiredTime(awaitingRaw)
	if err != nil {
		return session.PendingInputRecord{}, fmt.Errorf("failed to parse awaiting_since: %w", err)
	}
	return pending, nil
}

func (s *Store) DeletePendingInput(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run_id is required")
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_inputs WHERE run_id = ?;", runID)
	if err != nil {
		return fmt.Errorf("failed to delete pending input: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePendingInputsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		"DELETE FROM pending_inputs WHERE awaiting_since < ?;",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired pending inputs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return int(affected), nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeConversationRow(
	base session.ConversationRecord,
	messagesRaw string,
	metadataRaw string,
	createdRaw string,
	updatedRaw string,
) (session.ConversationRecord, error) {
	base.Messages = []types.ChatMessage{}
	if strings.TrimSpace(messagesRaw) != "" {
		if err := json.Unmarshal([]byte(messagesRaw), &base.Messages); err != nil {
			return session.ConversationRecord{}, fmt.Errorf("failed to decode conversation messages: %w", err)
		}
	}
	if strings.TrimSpace(metadataRaw) == "" {
		base.Metadata = map[string]any{}
	} else if err := json.Unmarshal([]byte(metadataRaw), &base.Metadata); err != nil {
		return session.ConversationRecord{}, fmt.Errorf("failed to decode conversation metadata: %w", err)
	}
	created, err := parseRequiredTime(createdRaw)
	if err != nil {
		return session.ConversationRecord{}, fmt.Errorf("failed to parse conversation created_at: %w", err)
	}
	updated, err := parseRequiredTime(updatedRaw)
	if err != nil {
		return session.ConversationRecord{}, fmt.Errorf("failed to parse conversation updated_at: %w", err)
	}
	base.CreatedAt = &created
	base.UpdatedAt = &updated
	return base, nil
}

func parseRequiredTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
