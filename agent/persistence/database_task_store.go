package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/a2aengine/internal/database"
	"github.com/BaSui01/a2aengine/types"
)

// taskRecord is the row layout of a2a_tasks. The whole task is kept as a
// JSON document; context_id and state are copied out for querying.
type taskRecord struct {
	ID        string `gorm:"primaryKey;size:255"`
	ContextID string `gorm:"size:255;index:idx_a2a_tasks_context"`
	State     string `gorm:"size:32"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (taskRecord) TableName() string { return "a2a_tasks" }

func newTaskRecord(task *types.Task) (*taskRecord, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return &taskRecord{
		ID:        task.ID,
		ContextID: task.ContextID,
		State:     string(task.Status.State),
		Payload:   string(data),
	}, nil
}

func (r *taskRecord) toTask() (*types.Task, error) {
	var task types.Task
	if err := json.Unmarshal([]byte(r.Payload), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", r.ID, err)
	}
	return &task, nil
}

// DatabaseTaskStore is a GORM implementation of TaskStore.
// Updates run in a transaction that locks the row where the dialect supports it
// and are retried on deadlocks and serialization failures.
type DatabaseTaskStore struct {
	db *gorm.DB
}

var _ TaskStore = (*DatabaseTaskStore)(nil)

// NewDatabaseTaskStore creates a task store, creating its table when autoMigrate is set.
func NewDatabaseTaskStore(db *gorm.DB, autoMigrate bool) (*DatabaseTaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if autoMigrate {
		if err := db.AutoMigrate(&taskRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate task table: %w", err)
		}
	}
	return &DatabaseTaskStore{db: db}, nil
}

// Close is a no-op; the connection pool is closed by its owner.
func (s *DatabaseTaskStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *DatabaseTaskStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetTask retrieves a task by ID
func (s *DatabaseTaskStore) GetTask(ctx context.Context, taskID string, query TaskQuery) (*types.Task, error) {
	var rec taskRecord
	err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	task, err := rec.toTask()
	if err != nil {
		return nil, err
	}
	return ProjectTask(task, query), nil
}

// SaveTask creates or replaces a task snapshot
func (s *DatabaseTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	if err := validateTask(task); err != nil {
		return err
	}

	rec, err := newTaskRecord(task)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"context_id", "state", "payload", "updated_at"}),
	}).Create(rec).Error
}

// UpdateStatus applies a status update event
func (s *DatabaseTaskStore) UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	if err := validateStatusEvent(event); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update status", event.TaskID, func(task *types.Task) {
		ApplyStatusUpdate(task, event)
	})
}

// UpdateArtifact applies an artifact update event
func (s *DatabaseTaskStore) UpdateArtifact(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	if err := validateArtifactEvent(event); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update artifact", event.TaskID, func(task *types.Task) {
		ApplyArtifactUpdate(task, event)
	})
}

func (s *DatabaseTaskStore) mutate(ctx context.Context, op, taskID string, fn func(*types.Task)) (*types.Task, error) {
	var updated *types.Task
	err := database.TransactionWithRetry(ctx, s.db, database.DefaultTransactionRetries, nil, func(tx *gorm.DB) error {
		var rec taskRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", taskID).First(&rec).Error
		if err != nil {
			return err
		}

		task, err := rec.toTask()
		if err != nil {
			return err
		}
		fn(task)

		next, err := newTaskRecord(task)
		if err != nil {
			return err
		}
		err = tx.Model(&taskRecord{}).Where("id = ?", taskID).Updates(map[string]any{
			"state":      next.State,
			"payload":    next.Payload,
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return err
		}
		updated = task
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unknownTask(op, taskID)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task
func (s *DatabaseTaskStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&taskRecord{}).Error
}

// ListByContext returns the tasks of a context in creation order
func (s *DatabaseTaskStore) ListByContext(ctx context.Context, contextID string) ([]*types.Task, error) {
	var records []taskRecord
	err := s.db.WithContext(ctx).
		Where("context_id = ?", contextID).
		Order("created_at ASC").Order("id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	result := make([]*types.Task, 0, len(records))
	for i := range records {
		task, err := records[i].toTask()
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, nil
}
