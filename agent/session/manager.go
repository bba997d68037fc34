package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/a2aengine/agent/persistence"
	"github.com/BaSui01/a2aengine/internal/metrics"
	"github.com/BaSui01/a2aengine/internal/pool"
	"github.com/BaSui01/a2aengine/types"
)

// ManagerConfig wires the manager to its notification collaborators.
// Notifications are disabled when PushConfigs or Sender is nil.
type ManagerConfig struct {
	PushConfigs persistence.PushConfigStore
	Sender      PushNotificationSender

	// Jobs runs detached notification jobs. Nil creates a pool owned and
	// closed by the manager.
	Jobs *pool.GoroutinePool

	// SendTimeout bounds one Send call; zero means no extra bound.
	SendTimeout time.Duration
}

// Manager tracks running sessions by task id and dispatches push
// notifications for terminal status events.
type Manager struct {
	pushConfigs persistence.PushConfigStore
	sender      PushNotificationSender
	jobs        *pool.GoroutinePool
	ownsJobs    bool
	sendTimeout time.Duration

	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	byTask   map[string]*Session
	closed   bool
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig, opts ...Option) *Manager {
	o := buildOptions(opts)

	m := &Manager{
		pushConfigs: cfg.PushConfigs,
		sender:      cfg.Sender,
		jobs:        cfg.Jobs,
		sendTimeout: cfg.SendTimeout,
		logger:      o.logger.With(zap.String("component", "session_manager")),
		metrics:     o.metrics,
		now:         o.now,
		sessions:    make(map[*Session]struct{}),
		byTask:      make(map[string]*Session),
	}
	if m.jobs == nil {
		m.jobs = pool.NewGoroutinePool(pool.DefaultGoroutinePoolConfig())
		m.ownsJobs = true
	}
	return m
}

// AddSession registers s. The session becomes retrievable by task id once
// its processor reports a task and is dropped when it completes.
func (m *Manager) AddSession(s *Session) error {
	if s == nil || s.processor == nil {
		return fmt.Errorf("session requires an event processor")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, ok := m.sessions[s]; ok {
		m.mu.Unlock()
		return ErrSessionExists
	}
	m.sessions[s] = struct{}{}
	active := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(active)

	if taskID := s.processor.setObserver(&sessionObserver{m: m, s: s}); taskID != "" {
		m.bind(s, taskID)
	}
	s.OnComplete(m.remove)

	m.logger.Debug("session added",
		zap.String("session_id", s.ID()),
		zap.String("context_id", s.processor.ContextID()),
	)
	return nil
}

// GetSession returns the running session owning taskID.
func (m *Manager) GetSession(taskID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byTask[taskID]
	return s, ok
}

// ActiveSessions returns the number of tracked sessions that have not completed.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// WaitNotifications blocks until every dispatched notification job finished
// or ctx is done.
func (m *Manager) WaitNotifications(ctx context.Context) error {
	return m.jobs.Drain(ctx)
}

// Shutdown stops accepting sessions, cancels the running ones, waits for
// them and then for outstanding notifications. Sessions that were added but
// never started are dropped from the table.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	running := make([]*Session, 0, len(m.sessions))
	for s := range m.sessions {
		running = append(running, s)
	}
	m.mu.Unlock()

	m.logger.Info("shutting down session manager", zap.Int("sessions", len(running)))

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range running {
		s.Cancel()
		// Never-started sessions have nothing to join.
		if s.State() == StateNotStarted {
			m.remove(s)
			continue
		}
		g.Go(func() error {
			select {
			case <-s.Done():
				return nil
			case <-gctx.Done():
				return fmt.Errorf("session %s did not stop: %w", s.ID(), gctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.WaitNotifications(ctx); err != nil {
		return fmt.Errorf("failed to drain notifications: %w", err)
	}
	if m.ownsJobs {
		m.jobs.Close()
	}
	return nil
}

func (m *Manager) bind(s *Session, taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s]; !ok {
		return
	}
	m.byTask[taskID] = s
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if _, ok := m.sessions[s]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, s)
	taskID := s.TaskID()
	if owner, ok := m.byTask[taskID]; ok && owner == s {
		delete(m.byTask, taskID)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	err := s.Err()
	m.metrics.SetActiveSessions(active)
	if started := s.StartedAt(); !started.IsZero() {
		m.metrics.RecordSessionCompleted(completionStatus(err), m.now().Sub(started))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("session failed",
			zap.String("session_id", s.ID()),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	m.logger.Debug("session completed",
		zap.String("session_id", s.ID()),
		zap.String("task_id", taskID),
	)
}

// dispatch hands the terminal task to a detached job. It never blocks on a
// busy pool; a saturated queue drops the notification with an error log.
func (m *Manager) dispatch(task *types.Task) {
	if m.pushConfigs == nil || m.sender == nil {
		return
	}

	err := m.jobs.TrySubmit(context.Background(), func(ctx context.Context) error {
		m.notify(ctx, task)
		return nil
	})
	if err != nil {
		m.metrics.RecordNotification(err, 0)
		m.logger.Error("failed to dispatch push notification",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
	}
}

func (m *Manager) notify(ctx context.Context, task *types.Task) {
	configs, err := m.pushConfigs.GetConfigs(ctx, task.ID)
	if err != nil {
		m.logger.Error("failed to load push notification configs",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}

	for _, cfg := range configs {
		m.send(ctx, cfg, task)
	}
}

func (m *Manager) send(ctx context.Context, cfg *types.PushNotificationConfig, task *types.Task) {
	if m.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.sendTimeout)
		defer cancel()
	}

	start := m.now()
	err := m.sender.Send(ctx, cfg, task)
	m.metrics.RecordNotification(err, m.now().Sub(start))

	if err != nil {
		m.logger.Error("push notification failed",
			zap.String("task_id", task.ID),
			zap.String("config_id", cfg.ID),
			zap.Error(err),
		)
		return
	}
	m.logger.Info("push notification sent",
		zap.String("task_id", task.ID),
		zap.String("config_id", cfg.ID),
	)
}

func completionStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}

// sessionObserver forwards one session's processor reports to the manager.
type sessionObserver struct {
	m *Manager
	s *Session
}

func (o *sessionObserver) taskBound(taskID string) { o.m.bind(o.s, taskID) }

func (o *sessionObserver) taskFinal(task *types.Task) { o.m.dispatch(task) }
