package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/BaSui01/a2aengine/types"
)

// TableName is the table every SQL backend stores checkpoints in.
const TableName = "agent_checkpoints"

var (
	// ErrNotFound is returned when no live checkpoint matches the request.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrVersionConflict is returned when another checkpoint of the same
	// agent already holds the version being saved.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrInvalidInput is returned for empty identifiers or nil data.
	ErrInvalidInput = errors.New("invalid checkpoint input")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("checkpoint store is closed")
)

// Data is the full agent state captured by a checkpoint.
type Data struct {
	CheckpointID   string           `json:"checkpoint_id"`
	CreatedAt      time.Time        `json:"created_at"`
	Version        int64            `json:"version"`
	NodePath       string           `json:"node_path,omitempty"`
	LastInput      *types.Message   `json:"last_input,omitempty"`
	MessageHistory []*types.Message `json:"message_history,omitempty"`
	Properties     types.Metadata   `json:"properties,omitempty"`
}

// Record is the persisted row of a checkpoint.
type Record struct {
	PersistenceID   string `gorm:"column:persistence_id;primaryKey;size:255"`
	CheckpointID    string `gorm:"column:checkpoint_id;primaryKey;size:255"`
	CreatedAtMillis int64  `gorm:"column:created_at;not null"`
	Payload         string `gorm:"column:checkpoint_payload;not null"`
	TTLTimestamp    *int64 `gorm:"column:ttl_timestamp"`
	Version         int64  `gorm:"column:version;not null"`
}

// TableName implements gorm's tabler.
func (Record) TableName() string { return TableName }

// ExpiredAt reports whether the record's TTL has passed at nowMillis.
func (r *Record) ExpiredAt(nowMillis int64) bool {
	return r.TTLTimestamp != nil && *r.TTLTimestamp < nowMillis
}

// Filter narrows checkpoint lookups. SQLStore calls Query with a statement
// already scoped to the agent; MemoryStore calls Match per row. A filter
// replaces the default expiry predicate.
type Filter interface {
	Query(db *gorm.DB) *gorm.DB
	Match(r *Record) bool
}

// Store persists versioned agent checkpoints.
type Store interface {
	SaveCheckpoint(ctx context.Context, agentID string, data *Data) error
	GetCheckpoint(ctx context.Context, agentID, checkpointID string) (*Data, error)
	GetLatestCheckpoint(ctx context.Context, agentID string, filter Filter) (*Data, error)
	GetCheckpoints(ctx context.Context, agentID string, filter Filter) ([]*Data, error)
	GetCheckpointCount(ctx context.Context, agentID string) (int64, error)
	DeleteCheckpoint(ctx context.Context, agentID, checkpointID string) error
	DeleteAllCheckpoints(ctx context.Context, agentID string) error
	CleanupExpired(ctx context.Context) (int64, error)
	ConditionalCleanup(ctx context.Context) (bool, error)
	Close() error
}

// Config controls TTL and cleanup.
type Config struct {
	// TTL is added to the creation time to compute ttl_timestamp. 0 disables expiry.
	TTL time.Duration

	// CleanupEnabled lets ConditionalCleanup run sweeps.
	CleanupEnabled bool

	// CleanupInterval is the minimum time between two successful sweeps.
	CleanupInterval time.Duration
}

// DefaultConfig returns a config without expiry and hourly cleanup.
func DefaultConfig() Config {
	return Config{
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
	}
}

// encodeRecord validates data and builds the row for agentID. A zero
// CreatedAt is stamped with now on the stored copy only.
func encodeRecord(agentID string, data *Data, now time.Time, ttl time.Duration) (*Record, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidInput)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: checkpoint data is nil", ErrInvalidInput)
	}
	if data.CheckpointID == "" {
		return nil, fmt.Errorf("%w: checkpoint id is required", ErrInvalidInput)
	}

	stored := *data
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	payload, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	rec := &Record{
		PersistenceID:   agentID,
		CheckpointID:    stored.CheckpointID,
		CreatedAtMillis: stored.CreatedAt.UnixMilli(),
		Payload:         string(payload),
		Version:         stored.Version,
	}
	if ttl > 0 {
		expires := rec.CreatedAtMillis + ttl.Milliseconds()
		rec.TTLTimestamp = &expires
	}
	return rec, nil
}

func decodeRecord(r *Record) (*Data, error) {
	var data Data
	if err := json.Unmarshal([]byte(r.Payload), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s/%s: %w", r.PersistenceID, r.CheckpointID, err)
	}
	return &data, nil
}

// isVersionConflict recognises unique violations whether or not the
// dialect translated them.
func isVersionConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"UNIQUE constraint failed", "duplicate key", "Duplicate entry"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
