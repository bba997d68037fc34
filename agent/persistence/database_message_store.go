package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/a2aengine/types"
)

// messageRecord is the row layout of a2a_messages. Seq orders the log.
type messageRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement"`
	MessageID string `gorm:"size:255"`
	ContextID string `gorm:"size:255;not null;index:idx_a2a_messages_context"`
	TaskID    string `gorm:"size:255"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (messageRecord) TableName() string { return "a2a_messages" }

// DatabaseMessageStore is a GORM implementation of MessageStore.
type DatabaseMessageStore struct {
	db *gorm.DB
}

var _ MessageStore = (*DatabaseMessageStore)(nil)

// NewDatabaseMessageStore creates a message store, creating its table when autoMigrate is set.
func NewDatabaseMessageStore(db *gorm.DB, autoMigrate bool) (*DatabaseMessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if autoMigrate {
		if err := db.AutoMigrate(&messageRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate message table: %w", err)
		}
	}
	return &DatabaseMessageStore{db: db}, nil
}

// Close is a no-op; the connection pool is closed by its owner.
func (s *DatabaseMessageStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *DatabaseMessageStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveMessage appends a message to its context log
func (s *DatabaseMessageStore) SaveMessage(ctx context.Context, msg *types.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return s.db.WithContext(ctx).Create(&messageRecord{
		MessageID: msg.MessageID,
		ContextID: msg.ContextID,
		TaskID:    msg.TaskID,
		Payload:   string(data),
	}).Error
}

// GetByContext returns a context's messages in insertion order
func (s *DatabaseMessageStore) GetByContext(ctx context.Context, contextID string) ([]*types.Message, error) {
	var records []messageRecord
	err := s.db.WithContext(ctx).
		Where("context_id = ?", contextID).
		Order("seq ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	result := make([]*types.Message, 0, len(records))
	for _, rec := range records {
		var msg types.Message
		if err := json.Unmarshal([]byte(rec.Payload), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message %s: %w", rec.MessageID, err)
		}
		result = append(result, &msg)
	}
	return result, nil
}

// DeleteByContext removes a context's messages
func (s *DatabaseMessageStore) DeleteByContext(ctx context.Context, contextID string) error {
	return s.db.WithContext(ctx).Where("context_id = ?", contextID).Delete(&messageRecord{}).Error
}
