package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dattmumas/lnked-realtime/internal/model"
)

// SummaryCache mirrors a user's conversation summary snapshot into Redis so
// unread counts and last-message previews survive an engine restart and are
// readable by other instances. Best-effort: the engine keeps working when
// Redis is away.
type SummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, prefix string, ttl time.Duration) *SummaryCache {
	if prefix == "" {
		prefix = "chat"
	}
	return &SummaryCache{client: client, prefix: prefix, ttl: ttl}
}

func (s *SummaryCache) key(userID string) string {
	return fmt.Sprintf("%s:summaries:%s", s.prefix, userID)
}

// Save stores the snapshot as JSON under the user's key.
func (s *SummaryCache) Save(ctx context.Context, userID string, c *model.ConversationCache) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal summaries: %w", err)
	}
	return s.client.Set(ctx, s.key(userID), b, s.ttl).Err()
}

// Load returns the stored snapshot, or (nil, nil) when none exists.
func (s *SummaryCache) Load(ctx context.Context, userID string) (*model.ConversationCache, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c model.ConversationCache
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal summaries: %w", err)
	}
	return &c, nil
}
