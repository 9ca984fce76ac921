// Package redis persists sessions in Redis with a TTL, for multi-node
// deployments where any instance may serve the next turn of a conversation.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/AgentWireHQ/agentwire/session"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultLimit  = 50
	defaultPrefix = "agentwire"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
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

	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.conversationKey(conv.ConversationID), string(raw), s.ttl)
	pipe.ZAdd(ctx, s.conversationIndexKey(), goredis.Z{
		Score:  float64(conv.UpdatedAt.Unix()),
		Member: conv.ConversationID,
	})
	pipe.Expire(ctx, s.conversationIndexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save conversation in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadConversation(ctx context.Context, conversationID string) (session.ConversationRecord, error) {
	if conversationID == "" {
		return session.ConversationRecord{}, fmt.Errorf("conversation_id is required")
	}

	raw, err := s.client.Get(ctx, s.conversationKey(conversationID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return session.ConversationRecord{}, session.ErrNotFound
		}
		return session.ConversationRecord{}, fmt.Errorf("failed to load conversation from redis: %w", err)
	}

	var conv session.ConversationRecord
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return session.ConversationRecord{}, fmt.Errorf("failed to decode conversation from redis: %w", err)
	}
	return conv, nil
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

	ids, err := s.client.ZRevRange(ctx, s.conversationIndexKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation ids: %w", err)
	}
	if len(ids) == 0 {
		return []session.ConversationRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.conversationKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget conversations from redis: %w", err)
	}

	out := make([]session.ConversationRecord, 0, len(loaded))
	staleIDs := make([]string, 0)
	for i, raw := range loaded {
		if raw == nil {
			staleIDs = append(staleIDs, ids[i])
			continue
		}
		var conv session.ConversationRecord
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &conv); err != nil {
			continue
		}
		out = append(out, conv)
	}

	// Index entries whose value key has expired are dropped lazily here.
	if len(staleIDs) > 0 {
		members := make([]any, 0, len(staleIDs))
		for _, id := range staleIDs {
			members = append(members, id)
		}
		_ = s.client.ZRem(ctx, s.conversationIndexKey(), members...).Err()
	}

	sort.Slice(out, func(i, j int) bool {
		left := time.Time{}
		if out[i].UpdatedAt != nil {
			left = *out[i].UpdatedAt
		}
		right := time.Time{}
		if out[j].UpdatedAt != nil {
			right = *out[j].UpdatedAt
		}
		return left.After(right)
	})

	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation_id is required")
	}
	removed, err := s.client.Del(ctx, s.conversationKey(conversationID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete conversation from redis: %w", err)
	}
	_ = s.client.ZRem(ctx, s.conversationIndexKey(), conversationID).Err()
	if removed == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("(%d", cutoff.Unix())
	ids, err := s.client.ZRangeByScore(ctx, s.conversationIndexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find stale conversations: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.conversationKey(id))
	}
	pipe.ZRemRangeByScore(ctx, s.conversationIndexKey(), "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete stale conversations: %w", err)
	}
	return len(ids), nil
}

func (s *Store) SavePendingInput(ctx context.Context, pending session.PendingInputRecord) error {
	if pending.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if pending.AwaitingSince.IsZero() {
		pending.AwaitingSince = time.Now().UTC()
	}

	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending input: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.pendingKey(pending.RunID), string(raw), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save pending input in redis: %w", err)
	}
	if !ok {
		return session.ErrConflict
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.pendingIndexKey(), goredis.Z{
		Score:  float64(pending.AwaitingSince.Unix()),
		Member: pending.RunID,
	})
	pipe.Expire(ctx, s.pendingIndexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index pending input: %w", err)
	}
	return nil
}

func (s *Store) LoadPendingInput(ctx context.Context, runID string) (session.PendingInputRecord, error) {
	if runID == "" {
		return session.PendingInputRecord{}, fmt.Errorf("run_id is required")
	}

	raw, err := s.client.Get(ctx, s.pendingKey(runID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return session.PendingInputRecord{}, session.ErrNotFound
		}
		return session.PendingInputRecord{}, fmt.Errorf("failed to load pending input from redis: %w", err)
	}

	var pending session.PendingInputRecord
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return session.PendingInputRecord{}, fmt.Errorf("failed to decode pending input: %w", err)
	}
	return pending, nil
}

func (s *Store) DeletePendingInput(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run_id is required")
	}
	removed, err := s.client.Del(ctx, s.pendingKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete pending input from redis: %w", err)
	}
	_ = s.client.ZRem(ctx, s.pendingIndexKey(), runID).Err()
	if removed == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePendingInputsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("(%d", cutoff.Unix())
	ids, err := s.client.ZRangeByScore(ctx, s.pendingIndexKey(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find expired pending inputs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.pendingKey(id))
	}
	pipe.ZRemRangeByScore(ctx, s.pendingIndexKey(), "-inf", max)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete expired pending inputs: %w", err)
	}
	return len(ids), nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) conversationKey(conversationID string) string {
	return fmt.Sprintf("%s:conv:%s", s.prefix, conversationID)
}

func (s *Store) conversationIndexKey() string {
	return fmt.Sprintf("%s:convidx", s.prefix)
}

func (s *Store) pendingKey(runID string) string {
	return fmt.Sprintf("%s:pending:%s", s.prefix, runID)
}

func (s *Store) pendingIndexKey() string {
	return fmt.Sprintf("%s:pendingidx", s.prefix)
}
