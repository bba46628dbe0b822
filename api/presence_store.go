package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors presence records somewhere other services can read
// them. Implementations must tolerate being called on every presence change.
type PresenceStore interface {
	Save(ctx context.Context, record PresenceRecord) error
}

// RedisPresenceStore writes presence records to Redis hashes keyed by user,
// with a TTL so records for departed users eventually evaporate.
type RedisPresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresenceStore builds a store around an existing Redis client.
func NewRedisPresenceStore(client *redis.Client, ttl time.Duration) *RedisPresenceStore {
	return &RedisPresenceStore{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return "presence:user:" + userID
}

// Save implements PresenceStore.
func (s *RedisPresenceStore) Save(ctx context.Context, record PresenceRecord) error {
	key := presenceKey(record.UserID)
	fields := map[string]any{
		"status":    string(record.Status),
		"message":   record.Message,
		"last_seen": record.LastSeen.UTC().Format(time.RFC3339),
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save presence for %s: %w", record.UserID, err)
	}
	return nil
}
