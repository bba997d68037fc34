// Package persistence provides the task, message and push-notification
// configuration stores of the A2A engine.
//
// Supported backends:
// - Memory: For development and testing (default)
// - Redis: For distributed production deployments
// - Database: GORM-backed SQL storage (postgres, mysql, sqlite)
package persistence

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeDatabase StoreType = "database"
)

// ParseStoreType parses a backend name.
func ParseStoreType(s string) (StoreType, error) {
	switch st := StoreType(s); st {
	case StoreTypeMemory, StoreTypeRedis, StoreTypeDatabase:
		return st, nil
	case "":
		return StoreTypeMemory, nil
	default:
		return "", fmt.Errorf("unsupported store type: %s", s)
	}
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`

	// Database configuration (only used when Type is "database")
	Database DatabaseStoreConfig `json:"database" yaml:"database"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	// TLS enables a hardened TLS connection; TLSServerName overrides the
	// name checked against the server certificate.
	TLS           bool   `json:"tls" yaml:"tls"`
	TLSServerName string `json:"tls_server_name" yaml:"tls_server_name"`
}

// DatabaseStoreConfig contains SQL-specific configuration
type DatabaseStoreConfig struct {
	// AutoMigrate creates the task, message and push config tables on startup
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type: StoreTypeMemory,
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "a2a:",
		},
		Database: DatabaseStoreConfig{
			AutoMigrate: true,
		},
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// TaskOperationError is returned when a status or artifact update targets a
// task that does not exist. The store is left unchanged.
type TaskOperationError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TaskOperationError) Error() string {
	return fmt.Sprintf("task %s: %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskOperationError) Unwrap() error { return e.Err }

// MessageOperationError is returned when a message cannot be stored, for
// example because it carries no context id.
type MessageOperationError struct {
	Op        string
	MessageID string
	Err       error
}

func (e *MessageOperationError) Error() string {
	return fmt.Sprintf("message %s: %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *MessageOperationError) Unwrap() error { return e.Err }

// errMissingContextID is wrapped by MessageOperationError.
var errMissingContextID = fmt.Errorf("%w: message has no context id", ErrInvalidInput)
