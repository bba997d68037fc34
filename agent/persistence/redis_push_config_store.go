package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/a2aengine/types"
)

// RedisPushConfigStore is a Redis-based implementation of PushConfigStore.
// Configs of a task live in a hash keyed by config id; a sorted set keeps
// registration order.
type RedisPushConfigStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ PushConfigStore = (*RedisPushConfigStore)(nil)

// NewRedisPushConfigStore creates a push config store on a shared client
func NewRedisPushConfigStore(client *redis.Client, keyPrefix string) *RedisPushConfigStore {
	if keyPrefix == "" {
		keyPrefix = "a2a:"
	}
	return &RedisPushConfigStore{
		client:    client,
		keyPrefix: keyPrefix + "push:",
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisPushConfigStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *RedisPushConfigStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisPushConfigStore) dataKey(taskID string) string {
	return s.keyPrefix + "data:" + taskID
}

func (s *RedisPushConfigStore) orderKey(taskID string) string {
	return s.keyPrefix + "order:" + taskID
}

// SaveConfig creates or replaces a config of a task
func (s *RedisPushConfigStore) SaveConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) error {
	if err := preparePushConfig(taskID, cfg); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal push config: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey(taskID), cfg.ID, data)
		pipe.ZAddNX(ctx, s.orderKey(taskID), redis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: cfg.ID,
		})
		return nil
	})
	return err
}

// GetConfigs returns a task's configs in registration order
func (s *RedisPushConfigStore) GetConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(taskID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*types.PushNotificationConfig, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	values, err := s.client.HMGet(ctx, s.dataKey(taskID), ids...).Result()
	if err != nil {
		return nil, err
	}

	for _, raw := range values {
		data, ok := raw.(string)
		if !ok {
			continue
		}
		var cfg types.PushNotificationConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal push config: %w", err)
		}
		result = append(result, &cfg)
	}
	return result, nil
}

// GetConfig returns one config of a task
func (s *RedisPushConfigStore) GetConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	data, err := s.client.HGet(ctx, s.dataKey(taskID), configID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cfg types.PushNotificationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push config: %w", err)
	}
	return &cfg, nil
}

// DeleteConfig removes one config of a task
func (s *RedisPushConfigStore) DeleteConfig(ctx context.Context, taskID, configID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.dataKey(taskID), configID)
		pipe.ZRem(ctx, s.orderKey(taskID), configID)
		return nil
	})
	return err
}

// DeleteConfigs removes every config of a task
func (s *RedisPushConfigStore) DeleteConfigs(ctx context.Context, taskID string) error {
	return s.client.Del(ctx, s.dataKey(taskID), s.orderKey(taskID)).Err()
}
