package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/a2aengine/types"
)

// pushConfigRecord is the row layout of a2a_push_configs.
type pushConfigRecord struct {
	TaskID    string `gorm:"primaryKey;size:255"`
	ConfigID  string `gorm:"primaryKey;size:255"`
	Payload   string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (pushConfigRecord) TableName() string { return "a2a_push_configs" }

func (r *pushConfigRecord) toConfig() (*types.PushNotificationConfig, error) {
	var cfg types.PushNotificationConfig
	if err := json.Unmarshal([]byte(r.Payload), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push config %s: %w", r.ConfigID, err)
	}
	return &cfg, nil
}

// DatabasePushConfigStore is a GORM implementation of PushConfigStore.
type DatabasePushConfigStore struct {
	db *gorm.DB
}

var _ PushConfigStore = (*DatabasePushConfigStore)(nil)

// NewDatabasePushConfigStore creates a push config store, creating its table when autoMigrate is set.
func NewDatabasePushConfigStore(db *gorm.DB, autoMigrate bool) (*DatabasePushConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if autoMigrate {
		if err := db.AutoMigrate(&pushConfigRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate push config table: %w", err)
		}
	}
	return &DatabasePushConfigStore{db: db}, nil
}

// Close is a no-op; the connection pool is closed by its owner.
func (s *DatabasePushConfigStore) Close() error {
	return nil
}

// Ping checks if the store is healthy
func (s *DatabasePushConfigStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveConfig creates or replaces a config of a task
func (s *DatabasePushConfigStore) SaveConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) error {
	if err := preparePushConfig(taskID, cfg); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal push config: %w", err)
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "config_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&pushConfigRecord{
		TaskID:   taskID,
		ConfigID: cfg.ID,
		Payload:  string(data),
	}).Error
}

// GetConfigs returns a task's configs in registration order
func (s *DatabasePushConfigStore) GetConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error) {
	var records []pushConfigRecord
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").Order("config_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	result := make([]*types.PushNotificationConfig, 0, len(records))
	for i := range records {
		cfg, err := records[i].toConfig()
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, nil
}

// GetConfig returns one config of a task
func (s *DatabasePushConfigStore) GetConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error) {
	var rec pushConfigRecord
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND config_id = ?", taskID, configID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.toConfig()
}

// DeleteConfig removes one config of a task
func (s *DatabasePushConfigStore) DeleteConfig(ctx context.Context, taskID, configID string) error {
	return s.db.WithContext(ctx).
		Where("task_id = ? AND config_id = ?", taskID, configID).
		Delete(&pushConfigRecord{}).Error
}

// DeleteConfigs removes every config of a task
func (s *DatabasePushConfigStore) DeleteConfigs(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&pushConfigRecord{}).Error
}
