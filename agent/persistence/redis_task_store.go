package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/a2aengine/internal/tlsutil"
	"github.com/BaSui01/a2aengine/types"
)

// maxTxRetries bounds optimistic WATCH/MULTI retries under contention.
const maxTxRetries = 16

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(config RedisStoreConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.ClientConfig(config.TLSServerName)
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisTaskStore is a Redis-based implementation of TaskStore.
// Suitable for distributed production deployments.
// Each task is a JSON document; a sorted set per context indexes task ids
// by creation time. Updates use WATCH/MULTI so concurrent writers from
// other processes cannot interleave inside one read-modify-write.
type RedisTaskStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ TaskStore = (*RedisTaskStore)(nil)

// NewRedisTaskStore creates a task store on a shared client. The client is
// owned by the caller.
func NewRedisTaskStore(client *redis.Client, keyPrefix string) *RedisTaskStore {
	if keyPrefix == "" {
		keyPrefix = "a2a:"
	}
	return &RedisTaskStore{
		client:    client,
		keyPrefix: keyPrefix + "task:",
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (s *RedisTaskStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *RedisTaskStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// taskKey returns the Redis key for a task
func (s *RedisTaskStore) taskKey(taskID string) string {
	return s.keyPrefix + "data:" + taskID
}

// contextKey returns the Redis key for a context's task index
func (s *RedisTaskStore) contextKey(contextID string) string {
	return s.keyPrefix + "context:" + contextID
}

// GetTask retrieves a task by ID
func (s *RedisTaskStore) GetTask(ctx context.Context, taskID string, query TaskQuery) (*types.Task, error) {
	task, err := s.load(ctx, s.client, taskID)
	if err != nil {
		return nil, err
	}
	return ProjectTask(task, query), nil
}

func (s *RedisTaskStore) load(ctx context.Context, cmd redis.Cmdable, taskID string) (*types.Task, error) {
	data, err := cmd.Get(ctx, s.taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var task types.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}

// SaveTask persists a task snapshot and indexes it under its context
func (s *RedisTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	if err := validateTask(task); err != nil {
		return err
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := s.taskKey(task.ID)
	return s.withRetry(ctx, key, func(tx *redis.Tx) error {
		old, err := s.load(ctx, tx, task.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if old != nil && old.ContextID != task.ContextID {
				pipe.ZRem(ctx, s.contextKey(old.ContextID), task.ID)
			}
			pipe.ZAddNX(ctx, s.contextKey(task.ContextID), redis.Z{
				Score:  float64(time.Now().UnixNano()),
				Member: task.ID,
			})
			return nil
		})
		return err
	})
}

// UpdateStatus applies a status update event
func (s *RedisTaskStore) UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	if err := validateStatusEvent(event); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update status", event.TaskID, func(task *types.Task) {
		ApplyStatusUpdate(task, event)
	})
}

// UpdateArtifact applies an artifact update event
func (s *RedisTaskStore) UpdateArtifact(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	if err := validateArtifactEvent(event); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update artifact", event.TaskID, func(task *types.Task) {
		ApplyArtifactUpdate(task, event)
	})
}

func (s *RedisTaskStore) mutate(ctx context.Context, op, taskID string, fn func(*types.Task)) (*types.Task, error) {
	key := s.taskKey(taskID)

	var updated *types.Task
	err := s.withRetry(ctx, key, func(tx *redis.Tx) error {
		task, err := s.load(ctx, tx, taskID)
		if err != nil {
			return err
		}

		fn(task)
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = task
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, unknownTask(op, taskID)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// withRetry runs fn inside WATCH key, retrying when another client touched key.
func (s *RedisTaskStore) withRetry(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s: too many concurrent writers", key)
}

// DeleteTask removes a task and its index entry
func (s *RedisTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	key := s.taskKey(taskID)
	return s.withRetry(ctx, key, func(tx *redis.Tx) error {
		task, err := s.load(ctx, tx, taskID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, s.contextKey(task.ContextID), taskID)
			return nil
		})
		return err
	})
}

// ListByContext returns the tasks of a context in creation order
func (s *RedisTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	taskIDs, err := s.client.ZRange(ctx, s.contextKey(contextID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*types.Task, 0, len(taskIDs))
	if len(taskIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = s.taskKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, raw := range values {
		data, ok := raw.(string)
		if !ok {
			// deleted between ZRANGE and MGET
			continue
		}
		var task types.Task
		if err := json.Unmarshal([]byte(data), &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task %s: %w", taskIDs[i], err)
		}
		result = append(result, &task)
	}
	return result, nil
}
