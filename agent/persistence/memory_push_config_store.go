package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/a2aengine/types"
)

// MemoryPushConfigStore is an in-memory implementation of PushConfigStore.
type MemoryPushConfigStore struct {
	configs map[string][]*types.PushNotificationConfig
	mu      sync.RWMutex
	closed  bool
}

var _ PushConfigStore = (*MemoryPushConfigStore)(nil)

// NewMemoryPushConfigStore creates a new in-memory push config store
func NewMemoryPushConfigStore() *MemoryPushConfigStore {
	return &MemoryPushConfigStore{
		configs: make(map[string][]*types.PushNotificationConfig),
	}
}

// Close closes the store
func (s *MemoryPushConfigStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryPushConfigStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveConfig creates or replaces a config of a task
func (s *MemoryPushConfigStore) SaveConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) error {
	if err := preparePushConfig(taskID, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	list := s.configs[taskID]
	for i, existing := range list {
		if existing.ID == cfg.ID {
			list[i] = cfg.Clone()
			return nil
		}
	}
	s.configs[taskID] = append(list, cfg.Clone())
	return nil
}

// GetConfigs returns a task's configs in registration order
func (s *MemoryPushConfigStore) GetConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	list := s.configs[taskID]
	result := make([]*types.PushNotificationConfig, len(list))
	for i, cfg := range list {
		result[i] = cfg.Clone()
	}
	return result, nil
}

// GetConfig returns one config of a task
func (s *MemoryPushConfigStore) GetConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	for _, cfg := range s.configs[taskID] {
		if cfg.ID == configID {
			return cfg.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// DeleteConfig removes one config of a task
func (s *MemoryPushConfigStore) DeleteConfig(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	list := s.configs[taskID]
	for i, cfg := range list {
		if cfg.ID == configID {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.configs, taskID)
	} else {
		s.configs[taskID] = list
	}
	return nil
}

// DeleteConfigs removes every config of a task
func (s *MemoryPushConfigStore) DeleteConfigs(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.configs, taskID)
	return nil
}
