package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/a2aengine/internal/ctxkeys"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Work is the agent logic a session runs. It reports its events through p.
type Work func(ctx context.Context, p *EventProcessor) error

// Session is a deferred, cancellable unit of agent work bound to one
// EventProcessor. It runs at most once.
type Session struct {
	id        string
	processor *EventProcessor
	work      Work

	mu        sync.Mutex
	state     State
	err       error
	canceled  bool
	cancel    context.CancelFunc
	startedAt time.Time
	callbacks []func(*Session)
	done      chan struct{}
}

// New creates a session that runs work against processor once started.
func New(processor *EventProcessor, work Work) *Session {
	return &Session{
		id:        uuid.NewString(),
		processor: processor,
		work:      work,
		done:      make(chan struct{}),
	}
}

// ID returns the session's generated identifier.
func (s *Session) ID() string { return s.id }

// Processor returns the processor the work reports to.
func (s *Session) Processor() *EventProcessor { return s.processor }

// TaskID returns the task the session's events were bound to, or "" while
// no task has been reported yet.
func (s *Session) TaskID() string {
	if s.processor == nil {
		return ""
	}
	return s.processor.TaskID()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the work's error once completed. A panic in the work is
// reported as an error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed after the session completed and its callbacks ran.
func (s *Session) Done() <-chan struct{} { return s.done }

// StartedAt returns when Start was called, zero before that.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Start runs the work in a new goroutine. The work's context derives from
// ctx and is cancelled by Cancel. A second Start returns ErrSessionStarted.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	runCtx, cancel := context.WithCancel(ctxkeys.WithSessionID(ctx, s.id))
	s.cancel = cancel
	s.state = StateRunning
	s.startedAt = time.Now()
	if s.canceled {
		cancel()
	}
	s.mu.Unlock()

	go s.run(runCtx)
	return nil
}

// Join blocks until the session completed and returns its error, or until
// ctx is done.
func (s *Session) Join(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartAndJoin starts the session and waits for it.
func (s *Session) StartAndJoin(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Join(ctx)
}

// Cancel asks the work to stop. Writes already holding a task lock finish
// first. Cancelling twice or after completion does nothing; cancelling
// before Start makes the work start with a cancelled context.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCompleted || s.canceled {
		return
	}
	s.canceled = true
	if s.cancel != nil {
		s.cancel()
	}
}

// OnComplete registers fn to run after the work returned. If the session is
// already completed fn runs immediately on the caller's goroutine.
func (s *Session) OnComplete(fn func(*Session)) {
	s.mu.Lock()
	if s.state != StateCompleted {
		s.callbacks = append(s.callbacks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn(s)
}

func (s *Session) run(ctx context.Context) {
	err := s.invoke(ctx)

	s.mu.Lock()
	s.state = StateCompleted
	s.err = err
	callbacks := s.callbacks
	s.callbacks = nil
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	for _, fn := range callbacks {
		fn(s)
	}
	close(s.done)
}

func (s *Session) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session %s panicked: %v", s.id, r)
		}
	}()
	if s.work == nil {
		return nil
	}
	return s.work(ctx, s.processor)
}
