package checkpoint

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/a2aengine/config"
)

// ConfigFrom converts the application checkpoint section.
func ConfigFrom(cfg config.CheckpointConfig) Config {
	return Config{
		TTL:             cfg.TTL,
		CleanupEnabled:  cfg.CleanupEnabled,
		CleanupInterval: cfg.CleanupInterval,
	}
}

// NewStore builds the backend named by cfg.Backend. db and migrator are
// only used by the sql backend.
func NewStore(ctx context.Context, cfg config.CheckpointConfig, db *gorm.DB, migrator Migrator, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(ConfigFrom(cfg), opts...), nil
	case "sql":
		return NewSQLStore(ctx, db, migrator, ConfigFrom(cfg), opts...)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s (supported: memory, sql)", cfg.Backend)
	}
}

// RunCleanup calls ConditionalCleanup every interval until ctx is done.
// Saves also trigger cleanup; this loop covers idle periods.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.ConditionalCleanup(ctx); err != nil {
				logger.Warn("periodic checkpoint cleanup failed", zap.Error(err))
			}
		}
	}
}
