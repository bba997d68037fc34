package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/BaSui01/a2aengine/types"
)

// PushConfigStore defines the interface for per-task webhook configuration.
// A task may have several configs, each identified by its ID.
type PushConfigStore interface {
	Store

	// SaveConfig creates or replaces a config of a task. An empty ID is
	// filled with a generated one, visible on cfg after the call.
	SaveConfig(ctx context.Context, taskID string, cfg *types.PushNotificationConfig) error

	// GetConfigs returns a task's configs in registration order.
	// A task without configs yields an empty slice.
	GetConfigs(ctx context.Context, taskID string) ([]*types.PushNotificationConfig, error)

	// GetConfig returns one config. Returns ErrNotFound if absent.
	GetConfig(ctx context.Context, taskID, configID string) (*types.PushNotificationConfig, error)

	// DeleteConfig removes one config
	DeleteConfig(ctx context.Context, taskID, configID string) error

	// DeleteConfigs removes every config of a task
	DeleteConfigs(ctx context.Context, taskID string) error
}

func preparePushConfig(taskID string, cfg *types.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("%w: push config has no task id", ErrInvalidInput)
	}
	if cfg == nil || cfg.URL == "" {
		return fmt.Errorf("%w: push config has no url", ErrInvalidInput)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	return nil
}
