package checkpoint

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/a2aengine/internal/database"
)

const sqlBackend = "sql"

// Migrator creates the checkpoint schema for one database backend.
type Migrator interface {
	Up(ctx context.Context) error
}

// SQLStore is a dialect-agnostic checkpoint store on GORM. The schema is
// owned by the Migrator handed to NewSQLStore.
type SQLStore struct {
	db      *gorm.DB
	config  Config
	opts    options
	logger  *zap.Logger
	cleanup cleanupGate
	closed  atomic.Bool
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore runs migrator.Up and returns a store on db. A migration
// failure is returned as is; the store cannot serve without its schema.
func NewSQLStore(ctx context.Context, db *gorm.DB, migrator Migrator, config Config, opts ...Option) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	if migrator == nil {
		return nil, fmt.Errorf("checkpoint migrator is required")
	}

	o := buildOptions(opts)
	logger := o.logger.With(zap.String("component", "checkpoint_store"), zap.String("backend", sqlBackend))

	if err := migrator.Up(ctx); err != nil {
		logger.Error("checkpoint schema migration failed", zap.Error(err))
		return nil, fmt.Errorf("failed to migrate checkpoint schema: %w", err)
	}

	logger.Info("checkpoint store ready",
		zap.Duration("ttl", config.TTL),
		zap.Bool("cleanup_enabled", config.CleanupEnabled),
	)

	return &SQLStore{
		db:     db,
		config: config,
		opts:   o,
		logger: logger,
	}, nil
}

func (s *SQLStore) observe(op string, start time.Time, err error) {
	s.opts.metrics.RecordCheckpointOp(sqlBackend, op, err, time.Since(start))
}

func (s *SQLStore) scoped(ctx context.Context, agentID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&Record{}).Where("persistence_id = ?", agentID)
}

// SaveCheckpoint stores the checkpoint keyed by (agentID, CheckpointID),
// replacing an existing one. Transient write failures are retried.
func (s *SQLStore) SaveCheckpoint(ctx context.Context, agentID string, data *Data) (err error) {
	defer func(start time.Time) { s.observe("save", start, err) }(time.Now())

	if s.closed.Load() {
		return ErrStoreClosed
	}

	rec, err := encodeRecord(agentID, data, s.opts.now(), s.config.TTL)
	if err != nil {
		return err
	}

	err = database.TransactionWithRetry(ctx, s.db, database.DefaultTransactionRetries, s.logger, func(tx *gorm.DB) error {
		return writeRecord(tx, rec)
	})
	if err != nil {
		if isVersionConflict(err) {
			return fmt.Errorf("%w: agent %s already has version %d", ErrVersionConflict, agentID, rec.Version)
		}
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("agent_id", agentID),
		zap.String("checkpoint_id", rec.CheckpointID),
		zap.Int64("version", rec.Version),
	)

	if _, cerr := s.ConditionalCleanup(ctx); cerr != nil {
		s.logger.Warn("checkpoint cleanup after save failed", zap.Error(cerr))
	}
	return nil
}

// writeRecord replaces the row with rec's primary key or inserts it. It
// never upserts: MySQL's ON DUPLICATE KEY fires on any unique key and would
// overwrite the holder of rec.Version, so a version collision has to fail
// as a unique violation.
func writeRecord(tx *gorm.DB, rec *Record) error {
	byKey := func() *gorm.DB {
		return tx.Model(&Record{}).
			Where("persistence_id = ? AND checkpoint_id = ?", rec.PersistenceID, rec.CheckpointID)
	}

	res := byKey().Updates(map[string]any{
		"created_at":         rec.CreatedAtMillis,
		"checkpoint_payload": rec.Payload,
		"ttl_timestamp":      rec.TTLTimestamp,
		"version":            rec.Version,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports zero affected rows when the values did not change.
	var existing int64
	if err := byKey().Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	return tx.Create(rec).Error
}

// GetCheckpoint returns a live checkpoint by id.
func (s *SQLStore) GetCheckpoint(ctx context.Context, agentID, checkpointID string) (_ *Data, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())

	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	q := liveQuery(s.scoped(ctx, agentID).Where("checkpoint_id = ?", checkpointID), s.opts.now().UnixMilli())
	return s.first(q)
}

// GetLatestCheckpoint returns the live checkpoint with the highest version.
// A non-nil filter replaces the expiry predicate.
func (s *SQLStore) GetLatestCheckpoint(ctx context.Context, agentID string, filter Filter) (_ *Data, err error) {
	defer func(start time.Time) { s.observe("get_latest", start, err) }(time.Now())

	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	return s.first(s.filtered(ctx, agentID, filter).Order("version DESC"))
}

// first streams rows in query order and returns the first decodable one.
func (s *SQLStore) first(q *gorm.DB) (*Data, error) {
	rows, err := q.Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	skipped := 0
	defer func() { s.opts.metrics.RecordCheckpointSkipped(skipped) }()

	for rows.Next() {
		var rec Record
		if err := s.db.ScanRows(rows, &rec); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		data, err := decodeRecord(&rec)
		if err != nil {
			skipped++
			s.logger.Warn("skipping undecodable checkpoint", zap.String("agent_id", rec.PersistenceID), zap.Error(err))
			continue
		}
		return data, nil
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}
	return nil, ErrNotFound
}

// GetCheckpoints lists checkpoints in ascending version order, skipping
// rows that cannot be decoded.
func (s *SQLStore) GetCheckpoints(ctx context.Context, agentID string, filter Filter) (_ []*Data, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())

	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	var records []Record
	if err := s.filtered(ctx, agentID, filter).Order("version ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	result := make([]*Data, 0, len(records))
	skipped := 0
	for i := range records {
		data, err := decodeRecord(&records[i])
		if err != nil {
			skipped++
			s.logger.Warn("skipping undecodable checkpoint", zap.String("agent_id", agentID), zap.Error(err))
			continue
		}
		result = append(result, data)
	}
	s.opts.metrics.RecordCheckpointSkipped(skipped)
	return result, nil
}

func (s *SQLStore) filtered(ctx context.Context, agentID string, filter Filter) *gorm.DB {
	q := s.scoped(ctx, agentID)
	if filter != nil {
		return filter.Query(q)
	}
	return liveQuery(q, s.opts.now().UnixMilli())
}

// GetCheckpointCount counts live checkpoints of the agent.
func (s *SQLStore) GetCheckpointCount(ctx context.Context, agentID string) (_ int64, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())

	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	var count int64
	if err := liveQuery(s.scoped(ctx, agentID), s.opts.now().UnixMilli()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count checkpoints: %w", err)
	}
	return count, nil
}

// DeleteCheckpoint removes one checkpoint. Deleting a missing one is not an error.
func (s *SQLStore) DeleteCheckpoint(ctx context.Context, agentID, checkpointID string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	if s.closed.Load() {
		return ErrStoreClosed
	}

	err = s.db.WithContext(ctx).
		Where("persistence_id = ? AND checkpoint_id = ?", agentID, checkpointID).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// DeleteAllCheckpoints removes every checkpoint of the agent.
func (s *SQLStore) DeleteAllCheckpoints(ctx context.Context, agentID string) (err error) {
	defer func(start time.Time) { s.observe("delete_all", start, err) }(time.Now())

	if s.closed.Load() {
		return ErrStoreClosed
	}

	res := s.db.WithContext(ctx).Where("persistence_id = ?", agentID).Delete(&Record{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", res.Error)
	}
	s.logger.Debug("checkpoints deleted", zap.String("agent_id", agentID), zap.Int64("count", res.RowsAffected))
	return nil
}

// CleanupExpired deletes every row whose ttl_timestamp has passed.
func (s *SQLStore) CleanupExpired(ctx context.Context) (removed int64, err error) {
	defer func(start time.Time) {
		s.observe("cleanup", start, err)
		s.opts.metrics.RecordCheckpointCleanup(removed, err)
	}(time.Now())

	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	res := s.db.WithContext(ctx).
		Where("ttl_timestamp IS NOT NULL AND ttl_timestamp < ?", s.opts.now().UnixMilli()).
		Delete(&Record{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up expired checkpoints: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired checkpoints removed", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// ConditionalCleanup runs CleanupExpired when cleanup is due.
func (s *SQLStore) ConditionalCleanup(ctx context.Context) (bool, error) {
	return s.cleanup.maybeRun(ctx, s.config, s.opts.now, s.CleanupExpired)
}

// Close marks the store closed. The connection pool belongs to the caller.
func (s *SQLStore) Close() error {
	s.closed.Store(true)
	return nil
}
