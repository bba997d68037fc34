package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const memoryBackend = "memory"

// MemoryStore keeps encoded checkpoint rows in process memory. It follows
// the SQLStore contract, including version uniqueness and TTL.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]map[string]*Record
	config  Config
	opts    options
	logger  *zap.Logger
	cleanup cleanupGate
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore(config Config, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		rows:   make(map[string]map[string]*Record),
		config: config,
		opts:   o,
		logger: o.logger.With(zap.String("component", "checkpoint_store"), zap.String("backend", memoryBackend)),
	}
}

func (s *MemoryStore) observe(op string, start time.Time, err error) {
	s.opts.metrics.RecordCheckpointOp(memoryBackend, op, err, time.Since(start))
}

// SaveCheckpoint upserts the checkpoint keyed by (agentID, CheckpointID).
func (s *MemoryStore) SaveCheckpoint(ctx context.Context, agentID string, data *Data) (err error) {
	defer func(start time.Time) { s.observe("save", start, err) }(time.Now())

	rec, err := encodeRecord(agentID, data, s.opts.now(), s.config.TTL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	agentRows := s.rows[agentID]
	if agentRows == nil {
		agentRows = make(map[string]*Record)
		s.rows[agentID] = agentRows
	}
	for id, existing := range agentRows {
		if id != rec.CheckpointID && existing.Version == rec.Version {
			s.mu.Unlock()
			return fmt.Errorf("%w: agent %s already has version %d", ErrVersionConflict, agentID, rec.Version)
		}
	}
	agentRows[rec.CheckpointID] = rec
	s.mu.Unlock()

	if _, cerr := s.ConditionalCleanup(ctx); cerr != nil {
		s.logger.Warn("checkpoint cleanup after save failed", zap.Error(cerr))
	}
	return nil
}

// GetCheckpoint returns a live checkpoint by id.
func (s *MemoryStore) GetCheckpoint(ctx context.Context, agentID, checkpointID string) (_ *Data, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.rows[agentID][checkpointID]
	if !ok || rec.ExpiredAt(s.opts.now().UnixMilli()) {
		return nil, ErrNotFound
	}
	return s.decodeAll([]*Record{rec}, ErrNotFound)
}

// GetLatestCheckpoint returns the live checkpoint with the highest version.
// A non-nil filter replaces the expiry predicate.
func (s *MemoryStore) GetLatestCheckpoint(ctx context.Context, agentID string, filter Filter) (_ *Data, err error) {
	defer func(start time.Time) { s.observe("get_latest", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	matched := s.match(agentID, filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].Version > matched[j].Version })
	return s.decodeAll(matched, ErrNotFound)
}

// decodeAll returns the first decodable record, or notFound.
func (s *MemoryStore) decodeAll(records []*Record, notFound error) (*Data, error) {
	skipped := 0
	defer func() { s.opts.metrics.RecordCheckpointSkipped(skipped) }()

	for _, rec := range records {
		data, err := decodeRecord(rec)
		if err != nil {
			skipped++
			s.logger.Warn("skipping undecodable checkpoint", zap.String("agent_id", rec.PersistenceID), zap.Error(err))
			continue
		}
		return data, nil
	}
	return nil, notFound
}

// GetCheckpoints lists checkpoints in ascending version order.
func (s *MemoryStore) GetCheckpoints(ctx context.Context, agentID string, filter Filter) (_ []*Data, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	matched := s.match(agentID, filter)
	sort.Slice(matched, func(i, j int) bool { return matched[i].Version < matched[j].Version })

	result := make([]*Data, 0, len(matched))
	skipped := 0
	for _, rec := range matched {
		data, err := decodeRecord(rec)
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

// match must be called with the read lock held.
func (s *MemoryStore) match(agentID string, filter Filter) []*Record {
	if filter == nil {
		filter = LiveAt(s.opts.now())
	}
	var matched []*Record
	for _, rec := range s.rows[agentID] {
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// GetCheckpointCount counts live checkpoints of the agent.
func (s *MemoryStore) GetCheckpointCount(ctx context.Context, agentID string) (_ int64, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(s.match(agentID, nil))), nil
}

// DeleteCheckpoint removes one checkpoint. Deleting a missing one is not an error.
func (s *MemoryStore) DeleteCheckpoint(ctx context.Context, agentID, checkpointID string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if agentRows, ok := s.rows[agentID]; ok {
		delete(agentRows, checkpointID)
		if len(agentRows) == 0 {
			delete(s.rows, agentID)
		}
	}
	return nil
}

// DeleteAllCheckpoints removes every checkpoint of the agent.
func (s *MemoryStore) DeleteAllCheckpoints(ctx context.Context, agentID string) (err error) {
	defer func(start time.Time) { s.observe("delete_all", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	delete(s.rows, agentID)
	return nil
}

// CleanupExpired deletes every expired checkpoint.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (removed int64, err error) {
	defer func(start time.Time) {
		s.observe("cleanup", start, err)
		s.opts.metrics.RecordCheckpointCleanup(removed, err)
	}(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	now := s.opts.now().UnixMilli()
	for agentID, agentRows := range s.rows {
		for id, rec := range agentRows {
			if rec.ExpiredAt(now) {
				delete(agentRows, id)
				removed++
			}
		}
		if len(agentRows) == 0 {
			delete(s.rows, agentID)
		}
	}
	if removed > 0 {
		s.logger.Info("expired checkpoints removed", zap.Int64("count", removed))
	}
	return removed, nil
}

// ConditionalCleanup runs CleanupExpired when cleanup is due.
func (s *MemoryStore) ConditionalCleanup(ctx context.Context) (bool, error) {
	return s.cleanup.maybeRun(ctx, s.config, s.opts.now, s.CleanupExpired)
}

// Close releases all rows.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rows = nil
	return nil
}
