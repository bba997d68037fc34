package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/a2aengine/types"
)

type memoryTask struct {
	task *types.Task
	seq  uint64
}

// MemoryTaskStore is an in-memory implementation of TaskStore.
// Suitable for development and testing. Data is lost on restart.
// Tasks are deep-copied on the way in and out.
type MemoryTaskStore struct {
	tasks  map[string]*memoryTask
	seq    uint64
	mu     sync.RWMutex
	closed bool
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates a new in-memory task store
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*memoryTask),
	}
}

// Close closes the store
func (s *MemoryTaskStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryTaskStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// GetTask retrieves a task by ID
func (s *MemoryTaskStore) GetTask(ctx context.Context, taskID string, query TaskQuery) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return ProjectTask(entry.task, query), nil
}

// SaveTask persists a task snapshot
func (s *MemoryTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	if err := validateTask(task); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if entry, ok := s.tasks[task.ID]; ok {
		entry.task = task.Clone()
		return nil
	}
	s.seq++
	s.tasks[task.ID] = &memoryTask{task: task.Clone(), seq: s.seq}
	return nil
}

// UpdateStatus applies a status update event
func (s *MemoryTaskStore) UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	if err := validateStatusEvent(event); err != nil {
		return nil, err
	}
	return s.mutate("update status", event.TaskID, func(task *types.Task) {
		ApplyStatusUpdate(task, event)
	})
}

// UpdateArtifact applies an artifact update event
func (s *MemoryTaskStore) UpdateArtifact(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	if err := validateArtifactEvent(event); err != nil {
		return nil, err
	}
	return s.mutate("update artifact", event.TaskID, func(task *types.Task) {
		ApplyArtifactUpdate(task, event)
	})
}

// mutate applies fn to a private copy and swaps it in, so a failed update
// never leaves a half-applied task behind.
func (s *MemoryTaskStore) mutate(op, taskID string, fn func(*types.Task)) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entry, ok := s.tasks[taskID]
	if !ok {
		return nil, unknownTask(op, taskID)
	}

	updated := entry.task.Clone()
	fn(updated)
	entry.task = updated
	return updated.Clone(), nil
}

// DeleteTask removes a task from the store
func (s *MemoryTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.tasks, taskID)
	return nil
}

// ListByContext returns the tasks of a context in creation order
func (s *MemoryTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entries := make([]*memoryTask, 0)
	for _, entry := range s.tasks {
		if entry.task.ContextID == contextID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]*types.Task, len(entries))
	for i, entry := range entries {
		result[i] = entry.task.Clone()
	}
	return result, nil
}
