package persistence

import (
	"context"
	"sync"

	"github.com/BaSui01/a2aengine/types"
)

// MemoryMessageStore is an in-memory implementation of MessageStore.
type MemoryMessageStore struct {
	logs   map[string][]*types.Message
	mu     sync.RWMutex
	closed bool
}

var _ MessageStore = (*MemoryMessageStore)(nil)

// NewMemoryMessageStore creates a new in-memory message store
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		logs: make(map[string][]*types.Message),
	}
}

// Close closes the store
func (s *MemoryMessageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryMessageStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveMessage appends a message to its context log
func (s *MemoryMessageStore) SaveMessage(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.logs[msg.ContextID] = append(s.logs[msg.ContextID], msg.Clone())
	return nil
}

// GetByContext returns a context's messages in insertion order
func (s *MemoryMessageStore) GetByContext(ctx context.Context, contextID string) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	log := s.logs[contextID]
	result := make([]*types.Message, len(log))
	for i, msg := range log {
		result[i] = msg.Clone()
	}
	return result, nil
}

// DeleteByContext removes a context's messages
func (s *MemoryMessageStore) DeleteByContext(ctx context.Context, contextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.logs, contextID)
	return nil
}
