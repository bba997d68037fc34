package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/a2aengine/agent/persistence"
	"github.com/BaSui01/a2aengine/internal/ctxkeys"
	"github.com/BaSui01/a2aengine/internal/keyedmutex"
	"github.com/BaSui01/a2aengine/internal/metrics"
	"github.com/BaSui01/a2aengine/types"
)

// ProcessorConfig binds a processor to its context and shared stores.
type ProcessorConfig struct {
	// ContextID is required; events of other contexts are rejected.
	ContextID string

	// TaskID optionally pins the task; empty binds to the first task reported.
	TaskID string

	Tasks    persistence.TaskStore
	Messages persistence.MessageStore

	// Locks is the process-wide per-task lock shared by every processor.
	Locks *keyedmutex.KeyedMutex
}

// observer is notified about task binding and terminal status events.
type observer interface {
	taskBound(taskID string)
	taskFinal(task *types.Task)
}

// EventProcessor applies one session's events to the task and message
// stores. Task mutations are serialized per task id through the shared
// KeyedMutex; once a lock is held the write is not cancellable.
type EventProcessor struct {
	contextID string
	tasks     persistence.TaskStore
	messages  persistence.MessageStore
	locks     *keyedmutex.KeyedMutex

	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	mu       sync.Mutex
	expected string
	taskID   string
	closed   bool
	observer observer
}

// NewEventProcessor creates a processor for one context.
func NewEventProcessor(cfg ProcessorConfig, opts ...Option) (*EventProcessor, error) {
	if cfg.ContextID == "" {
		return nil, fmt.Errorf("%w: processor requires a context id", ErrInvalidEvent)
	}
	if cfg.Tasks == nil || cfg.Messages == nil {
		return nil, fmt.Errorf("processor requires task and message stores")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("processor requires a keyed mutex")
	}

	o := buildOptions(opts)
	return &EventProcessor{
		contextID: cfg.ContextID,
		expected:  cfg.TaskID,
		tasks:     cfg.Tasks,
		messages:  cfg.Messages,
		locks:     cfg.Locks,
		logger: o.logger.With(
			zap.String("component", "event_processor"),
			zap.String("context_id", cfg.ContextID),
		),
		metrics: o.metrics,
		tracer:  o.tracer,
	}, nil
}

// ContextID returns the processor's context.
func (p *EventProcessor) ContextID() string { return p.contextID }

// TaskID returns the bound task id, "" if none yet.
func (p *EventProcessor) TaskID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.taskID
}

// Closed reports whether a final status event has been processed.
func (p *EventProcessor) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// setObserver installs obs and returns the task id bound so far.
func (p *EventProcessor) setObserver(obs observer) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = obs
	return p.taskID
}

func (p *EventProcessor) currentObserver() observer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observer
}

// Process dispatches ev to the matching Send method.
func (p *EventProcessor) Process(ctx context.Context, ev types.Event) error {
	switch e := ev.(type) {
	case *types.Task:
		return p.SendTask(ctx, e)
	case *types.TaskStatusUpdateEvent:
		_, err := p.SendStatusUpdate(ctx, e)
		return err
	case *types.TaskArtifactUpdateEvent:
		_, err := p.SendArtifactUpdate(ctx, e)
		return err
	case *types.Message:
		return p.SendMessage(ctx, e)
	case nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	default:
		return fmt.Errorf("%w: unsupported event %T", ErrInvalidEvent, ev)
	}
}

// SendTask stores a full task snapshot.
func (p *EventProcessor) SendTask(ctx context.Context, task *types.Task) (err error) {
	if task == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidEvent)
	}
	ctx, finish := p.observe(ctx, task.EventKind(), task.ID)
	defer func() { finish(err) }()

	if err := p.checkContext(task.ContextID); err != nil {
		return err
	}
	if err := p.admit(task.ID, true); err != nil {
		return err
	}

	snapshot := task.Clone()
	if snapshot.ContextID == "" {
		snapshot.ContextID = p.contextID
	}

	return p.withTaskLock(ctx, task.ID, func(ctx context.Context) error {
		return p.tasks.SaveTask(ctx, snapshot)
	})
}

// SendStatusUpdate applies a status update and returns the updated task.
// A Final event closes the processor and is reported to the observer.
func (p *EventProcessor) SendStatusUpdate(ctx context.Context, event *types.TaskStatusUpdateEvent) (task *types.Task, err error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil status event", ErrInvalidEvent)
	}
	ctx, finish := p.observe(ctx, event.EventKind(), event.TaskID)
	defer func() { finish(err) }()

	if err := p.checkContext(event.ContextID); err != nil {
		return nil, err
	}
	if err := p.admit(event.TaskID, false); err != nil {
		return nil, err
	}

	var from types.TaskState
	err = p.withTaskLock(ctx, event.TaskID, func(ctx context.Context) error {
		if prev, err := p.tasks.GetTask(ctx, event.TaskID, persistence.TaskQuery{}); err == nil {
			from = prev.Status.State
		}

		updated, err := p.tasks.UpdateStatus(ctx, event)
		if err != nil {
			return err
		}
		task = updated

		if event.Final {
			p.mu.Lock()
			p.closed = true
			p.mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.bind(event.TaskID)

	p.metrics.RecordTaskTransition(string(from), string(task.Status.State))

	if event.Final {
		p.logger.Debug("task reached final status",
			zap.String("task_id", task.ID),
			zap.String("state", string(task.Status.State)),
		)
		if obs := p.currentObserver(); obs != nil {
			obs.taskFinal(task.Clone())
		}
	}
	return task, nil
}

// SendArtifactUpdate applies an artifact update and returns the updated task.
func (p *EventProcessor) SendArtifactUpdate(ctx context.Context, event *types.TaskArtifactUpdateEvent) (task *types.Task, err error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil artifact event", ErrInvalidEvent)
	}
	ctx, finish := p.observe(ctx, event.EventKind(), event.TaskID)
	defer func() { finish(err) }()

	if err := p.checkContext(event.ContextID); err != nil {
		return nil, err
	}
	if err := p.admit(event.TaskID, false); err != nil {
		return nil, err
	}

	err = p.withTaskLock(ctx, event.TaskID, func(ctx context.Context) error {
		updated, err := p.tasks.UpdateArtifact(ctx, event)
		if err != nil {
			return err
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// SendMessage appends a message to the context log. Messages without a
// context id are rejected by the store.
func (p *EventProcessor) SendMessage(ctx context.Context, msg *types.Message) (err error) {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidEvent)
	}
	ctx, finish := p.observe(ctx, msg.EventKind(), msg.TaskID)
	defer func() { finish(err) }()

	if msg.ContextID != "" {
		if err := p.checkContext(msg.ContextID); err != nil {
			return err
		}
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrProcessorClosed
	}

	return p.messages.SaveMessage(context.WithoutCancel(ctx), msg)
}

func (p *EventProcessor) checkContext(contextID string) error {
	if contextID != "" && contextID != p.contextID {
		return fmt.Errorf("%w: got %s, processor serves %s", ErrContextMismatch, contextID, p.contextID)
	}
	return nil
}

// admit rejects events after finalization and events of foreign tasks.
// With bind set the first admitted task id becomes the processor's bound
// task, even when it was pinned up front. Status updates bind only after
// the store accepted them.
func (p *EventProcessor) admit(taskID string, bind bool) error {
	if taskID == "" {
		return fmt.Errorf("%w: event has no task id", ErrInvalidEvent)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	want := p.taskID
	if want == "" {
		want = p.expected
	}
	if want != "" && want != taskID {
		p.mu.Unlock()
		return fmt.Errorf("%w: got %s, processor serves %s", ErrTaskMismatch, taskID, want)
	}
	p.mu.Unlock()

	if bind {
		p.bind(taskID)
	}
	return nil
}

// bind makes taskID the processor's task if none is bound yet and reports
// it to the observer.
func (p *EventProcessor) bind(taskID string) {
	p.mu.Lock()
	newlyBound := p.taskID == ""
	if newlyBound {
		p.taskID = taskID
	}
	obs := p.observer
	p.mu.Unlock()

	if newlyBound {
		p.logger.Debug("processor bound to task", zap.String("task_id", taskID))
		if obs != nil {
			obs.taskBound(taskID)
		}
	}
}

// withTaskLock runs fn holding the task's lock. Waiting for the lock honours
// ctx; fn itself gets a context that ignores cancellation.
func (p *EventProcessor) withTaskLock(ctx context.Context, taskID string, fn func(context.Context) error) error {
	unlock, err := p.locks.Lock(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to lock task %s: %w", taskID, err)
	}
	defer unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrProcessorClosed
	}

	return fn(context.WithoutCancel(ctx))
}

// observe opens the event span and returns the func that ends it and
// records metrics.
func (p *EventProcessor) observe(ctx context.Context, kind, taskID string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("a2a.event.kind", kind),
		attribute.String("a2a.context_id", p.contextID),
		attribute.String("a2a.task_id", taskID),
	}
	if sessionID, ok := ctxkeys.SessionID(ctx); ok {
		attrs = append(attrs, attribute.String("a2a.session_id", sessionID))
	}
	ctx, span := p.tracer.Start(ctx, "a2a.event."+kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var opErr *persistence.TaskOperationError
			if errors.As(err, &opErr) {
				p.logger.Warn("event rejected by task store",
					zap.String("kind", kind),
					zap.String("task_id", taskID),
					zap.Error(err),
				)
			}
		}
		span.End()
		p.metrics.RecordEvent(kind, err, time.Since(start))
	}
}
