package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Stores groups the task, message and push config stores of one backend.
type Stores struct {
	Tasks       TaskStore
	Messages    MessageStore
	PushConfigs PushConfigStore

	closers []func() error
}

// NewStores creates the stores for the configured backend. db is required
// for the database backend and ignored otherwise.
func NewStores(config StoreConfig, db *gorm.DB) (*Stores, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return &Stores{
			Tasks:       NewMemoryTaskStore(),
			Messages:    NewMemoryMessageStore(),
			PushConfigs: NewMemoryPushConfigStore(),
		}, nil

	case StoreTypeRedis:
		client, err := NewRedisClient(config.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStores(client, config.Redis.KeyPrefix), nil

	case StoreTypeDatabase:
		if db == nil {
			return nil, fmt.Errorf("database store requires a database connection")
		}
		return NewDatabaseStores(db, config.Database.AutoMigrate)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewRedisStores creates stores sharing one Redis client. Closing the
// returned Stores closes the client.
func NewRedisStores(client *redis.Client, keyPrefix string) *Stores {
	return &Stores{
		Tasks:       NewRedisTaskStore(client, keyPrefix),
		Messages:    NewRedisMessageStore(client, keyPrefix),
		PushConfigs: NewRedisPushConfigStore(client, keyPrefix),
		closers:     []func() error{client.Close},
	}
}

// NewDatabaseStores creates stores on a shared GORM connection.
func NewDatabaseStores(db *gorm.DB, autoMigrate bool) (*Stores, error) {
	tasks, err := NewDatabaseTaskStore(db, autoMigrate)
	if err != nil {
		return nil, err
	}
	messages, err := NewDatabaseMessageStore(db, autoMigrate)
	if err != nil {
		return nil, err
	}
	pushConfigs, err := NewDatabasePushConfigStore(db, autoMigrate)
	if err != nil {
		return nil, err
	}
	return &Stores{Tasks: tasks, Messages: messages, PushConfigs: pushConfigs}, nil
}

// Ping checks every store
func (s *Stores) Ping(ctx context.Context) error {
	for _, st := range []Store{s.Tasks, s.Messages, s.PushConfigs} {
		if err := st.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every store and any shared connection owned by s
func (s *Stores) Close() error {
	var errs []error
	for _, st := range []Store{s.Tasks, s.Messages, s.PushConfigs} {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustNewStores creates the stores or panics on error.
//
// WARNING: This function should ONLY be used during application initialization
// (e.g., in main() or init()). For runtime store creation, use NewStores instead.
func MustNewStores(config StoreConfig, db *gorm.DB) *Stores {
	stores, err := NewStores(config, db)
	if err != nil {
		panic(fmt.Sprintf("failed to create stores: %v", err))
	}
	return stores
}

// NewStoresOrExit creates the stores or exits the program on error.
// This is a safer alternative to MustNewStores for CLI applications.
func NewStoresOrExit(config StoreConfig, db *gorm.DB) *Stores {
	stores, err := NewStores(config, db)
	if err != nil {
		log.Printf("FATAL: failed to create stores: %v", err)
		os.Exit(1)
	}
	return stores
}
