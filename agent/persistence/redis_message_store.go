package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/a2aengine/types"
)

// RedisMessageStore is a Redis-based implementation of MessageStore.
// Each context is a Redis list of JSON messages, appended with RPUSH.
type RedisMessageStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ MessageStore = (*RedisMessageStore)(nil)

// NewRedisMessageStore creates a message store on a shared client
func NewRedisMessageStore(client *redis.Client, keyPrefix string) *RedisMessageStore {
	if keyPrefix == "" {
		keyPrefix = "a2a:"
	}
	return &RedisMessageStore{
		client:    client,
		keyPrefix: keyPrefix + "msg:",
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisMessageStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *RedisMessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// contextKey returns the Redis key for a context's message log
func (s *RedisMessageStore) contextKey(contextID string) string {
	return s.keyPrefix + "context:" + contextID
}

// SaveMessage appends a message to its context log
func (s *RedisMessageStore) SaveMessage(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.client.RPush(ctx, s.contextKey(msg.ContextID), data).Err()
}

// GetByContext returns a context's messages in insertion order
func (s *RedisMessageStore) GetByContext(ctx context.Context, contextID string) ([]*types.Message, error) {
	items, err := s.client.LRange(ctx, s.contextKey(contextID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*types.Message, 0, len(items))
	for _, item := range items {
		var msg types.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		result = append(result, &msg)
	}
	return result, nil
}

// DeleteByContext removes a context's messages
func (s *RedisMessageStore) DeleteByContext(ctx context.Context, contextID string) error {
	return s.client.Del(ctx, s.contextKey(contextID)).Err()
}
