package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/a2aengine/agent/persistence"
	"github.com/BaSui01/a2aengine/internal/keyedmutex"
	"github.com/BaSui01/a2aengine/internal/metrics"
	"github.com/BaSui01/a2aengine/types"
)

// =============================================================================
// 🧰 测试辅助
// =============================================================================

type fixture struct {
	tasks       persistence.TaskStore
	messages    persistence.MessageStore
	pushConfigs persistence.PushConfigStore
	locks       *keyedmutex.KeyedMutex
}

func newFixture() *fixture {
	return &fixture{
		tasks:       persistence.NewMemoryTaskStore(),
		messages:    persistence.NewMemoryMessageStore(),
		pushConfigs: persistence.NewMemoryPushConfigStore(),
		locks:       keyedmutex.New(),
	}
}

func (f *fixture) processor(t testing.TB, contextID, taskID string, opts ...Option) *EventProcessor {
	t.Helper()
	p, err := NewEventProcessor(ProcessorConfig{
		ContextID: contextID,
		TaskID:    taskID,
		Tasks:     f.tasks,
		Messages:  f.messages,
		Locks:     f.locks,
	}, opts...)
	require.NoError(t, err)
	return p
}

func submittedTask(taskID, contextID string) *types.Task {
	return &types.Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    types.TaskStatus{State: types.TaskStateSubmitted},
	}
}

func statusEvent(taskID, contextID string, state types.TaskState, msg *types.Message, final bool) *types.TaskStatusUpdateEvent {
	return &types.TaskStatusUpdateEvent{
		TaskID:    taskID,
		ContextID: contextID,
		Status:    types.TaskStatus{State: state, Message: msg},
		Final:     final,
	}
}

// counterValue sums the samples of a counter family whose labels match.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

type bogusEvent struct{}

func (bogusEvent) EventKind() string { return "bogus" }

// =============================================================================
// 🧪 EventProcessor 测试
// =============================================================================

func TestNewEventProcessor_Validation(t *testing.T) {
	f := newFixture()

	_, err := NewEventProcessor(ProcessorConfig{Tasks: f.tasks, Messages: f.messages, Locks: f.locks})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewEventProcessor(ProcessorConfig{ContextID: "ctx", Messages: f.messages, Locks: f.locks})
	assert.Error(t, err)

	_, err = NewEventProcessor(ProcessorConfig{ContextID: "ctx", Tasks: f.tasks, Messages: f.messages})
	assert.Error(t, err)
}

func TestEventProcessor_StatusHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	require.NoError(t, p.SendTask(ctx, submittedTask("task-1", "ctx-1")))
	assert.Equal(t, "task-1", p.TaskID())

	msg1 := types.NewTextMessage("m1", types.RoleAgent, "ctx-1", "one")
	msg2 := types.NewTextMessage("m2", types.RoleAgent, "ctx-1", "two")
	msg3 := types.NewTextMessage("m3", types.RoleAgent, "ctx-1", "three")

	for _, msg := range []*types.Message{msg1, msg2, msg3} {
		_, err := p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateWorking, msg, false))
		require.NoError(t, err)
	}

	task, err := f.tasks.GetTask(ctx, "task-1", persistence.FullTask())
	require.NoError(t, err)
	require.Len(t, task.History, 2)
	assert.Equal(t, "m1", task.History[0].MessageID)
	assert.Equal(t, "m2", task.History[1].MessageID)
	assert.Equal(t, "m3", task.Status.Message.MessageID)
}

func TestEventProcessor_FillsMissingContextID(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	require.NoError(t, p.SendTask(ctx, submittedTask("task-1", "")))

	task, err := f.tasks.GetTask(ctx, "task-1", persistence.TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", task.ContextID)
}

func TestEventProcessor_Mismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	p := f.processor(t, "ctx-1", "task-1")
	assert.ErrorIs(t, p.SendTask(ctx, submittedTask("task-1", "ctx-2")), ErrContextMismatch)
	assert.ErrorIs(t, p.SendTask(ctx, submittedTask("task-2", "ctx-1")), ErrTaskMismatch)

	_, err := p.SendArtifactUpdate(ctx, &types.TaskArtifactUpdateEvent{
		TaskID:    "task-2",
		ContextID: "ctx-1",
		Artifact:  &types.Artifact{ArtifactID: "a"},
	})
	assert.ErrorIs(t, err, ErrTaskMismatch)

	assert.ErrorIs(t, p.SendMessage(ctx, types.NewTextMessage("m", types.RoleUser, "ctx-9", "x")), ErrContextMismatch)

	// A lazily bound processor rejects other tasks after its first one.
	lazy := f.processor(t, "ctx-1", "")
	require.NoError(t, lazy.SendTask(ctx, submittedTask("task-3", "ctx-1")))
	assert.ErrorIs(t, lazy.SendTask(ctx, submittedTask("task-4", "ctx-1")), ErrTaskMismatch)
}

func TestEventProcessor_UnknownTaskLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	_, err := p.SendStatusUpdate(ctx, statusEvent("missing", "ctx-1", types.TaskStateWorking, nil, false))
	var opErr *persistence.TaskOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "missing", opErr.TaskID)

	_, err = f.tasks.GetTask(ctx, "missing", persistence.TaskQuery{})
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestEventProcessor_RejectedStatusUpdateDoesNotBind(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	_, err := p.SendStatusUpdate(ctx, statusEvent("ghost", "ctx-1", types.TaskStateWorking, nil, false))
	require.ErrorIs(t, err, persistence.ErrNotFound)
	assert.Empty(t, p.TaskID())

	require.NoError(t, p.SendTask(ctx, submittedTask("real", "ctx-1")))
	assert.Equal(t, "real", p.TaskID())

	_, err = p.SendStatusUpdate(ctx, statusEvent("ghost", "ctx-1", types.TaskStateWorking, nil, false))
	assert.ErrorIs(t, err, ErrTaskMismatch)
}

func TestEventProcessor_StatusUpdateBindsAfterAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.tasks.SaveTask(ctx, submittedTask("task-1", "ctx-1")))
	p := f.processor(t, "ctx-1", "")

	_, err := p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateWorking, nil, false))
	require.NoError(t, err)
	assert.Equal(t, "task-1", p.TaskID())
}

func TestEventProcessor_ClosedAfterFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	require.NoError(t, p.SendTask(ctx, submittedTask("task-1", "ctx-1")))
	task, err := p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateCompleted, nil, true))
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCompleted, task.Status.State)
	assert.True(t, p.Closed())

	_, err = p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateFailed, nil, true))
	assert.ErrorIs(t, err, ErrProcessorClosed)
	assert.ErrorIs(t, p.SendMessage(ctx, types.NewTextMessage("m", types.RoleAgent, "ctx-1", "late")), ErrProcessorClosed)

	stored, err := f.tasks.GetTask(ctx, "task-1", persistence.TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateCompleted, stored.Status.State)
}

func TestEventProcessor_Process(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	events := []types.Event{
		submittedTask("task-1", "ctx-1"),
		statusEvent("task-1", "ctx-1", types.TaskStateWorking, nil, false),
		&types.TaskArtifactUpdateEvent{
			TaskID:    "task-1",
			ContextID: "ctx-1",
			Artifact:  &types.Artifact{ArtifactID: "out", Parts: []types.Part{types.TextPart("hello")}},
		},
		types.NewTextMessage("m1", types.RoleAgent, "ctx-1", "done"),
	}
	for _, ev := range events {
		require.NoError(t, p.Process(ctx, ev), ev.EventKind())
	}

	task, err := f.tasks.GetTask(ctx, "task-1", persistence.FullTask())
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateWorking, task.Status.State)
	require.Len(t, task.Artifacts, 1)
	assert.Equal(t, "out", task.Artifacts[0].ArtifactID)

	msgs, err := f.messages.GetByContext(ctx, "ctx-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageID)

	assert.ErrorIs(t, p.Process(ctx, bogusEvent{}), ErrInvalidEvent)
	assert.ErrorIs(t, p.Process(ctx, nil), ErrInvalidEvent)
}

func TestEventProcessor_MessageWithoutContextRejectedByStore(t *testing.T) {
	f := newFixture()
	p := f.processor(t, "ctx-1", "")

	err := p.SendMessage(context.Background(), &types.Message{MessageID: "m", Role: types.RoleUser})
	var opErr *persistence.MessageOperationError
	assert.ErrorAs(t, err, &opErr)
}

func TestEventProcessor_LockWaitHonoursContext(t *testing.T) {
	f := newFixture()
	p := f.processor(t, "ctx-1", "")
	require.NoError(t, p.SendTask(context.Background(), submittedTask("task-1", "ctx-1")))

	unlock, err := f.locks.Lock(context.Background(), "task-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateWorking, nil, false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// blockingTaskStore parks UpdateStatus until released and records the
// context error seen by the write.
type blockingTaskStore struct {
	persistence.TaskStore
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (s *blockingTaskStore) UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	close(s.entered)
	<-s.release
	s.ctxErr = ctx.Err()
	return s.TaskStore.UpdateStatus(ctx, event)
}

func TestEventProcessor_WriteSurvivesCancellation(t *testing.T) {
	store := &blockingTaskStore{
		TaskStore: persistence.NewMemoryTaskStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	require.NoError(t, store.SaveTask(context.Background(), submittedTask("task-1", "ctx-1")))

	p, err := NewEventProcessor(ProcessorConfig{
		ContextID: "ctx-1",
		Tasks:     store,
		Messages:  persistence.NewMemoryMessageStore(),
		Locks:     keyedmutex.New(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateWorking, nil, false))
		result <- err
	}()

	<-store.entered
	cancel()
	close(store.release)

	require.NoError(t, <-result)
	assert.NoError(t, store.ctxErr)

	task, err := store.GetTask(context.Background(), "task-1", persistence.TaskQuery{})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateWorking, task.Status.State)
}

func TestEventProcessor_SpansAndMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegisterer("test", reg, nil)

	p := f.processor(t, "ctx-1", "",
		WithTracer(tp.Tracer("test")),
		WithMetrics(collector),
		WithLogger(zaptest.NewLogger(t)),
	)

	require.NoError(t, p.SendTask(ctx, submittedTask("task-1", "ctx-1")))
	_, err := p.SendStatusUpdate(ctx, statusEvent("task-1", "ctx-1", types.TaskStateWorking, nil, false))
	require.NoError(t, err)
	_, err = p.SendStatusUpdate(ctx, statusEvent("nope", "ctx-1", types.TaskStateWorking, nil, false))
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "a2a.event.task", spans[0].Name())
	assert.Equal(t, "a2a.event.status-update", spans[1].Name())
	assert.NotEmpty(t, spans[2].Events(), "failed event records the error")

	assert.Equal(t, 1.0, counterValue(t, reg, "test_events_total", map[string]string{"kind": "task"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_task_state_transitions_total",
		map[string]string{"from_state": "submitted", "to_state": "working"}))
}

// =============================================================================
// 🔀 并发交错压力测试
// =============================================================================

// recordingTaskStore logs every successfully applied update. Updates reach
// it under the task lock, so the log is the acceptance order.
type recordingTaskStore struct {
	persistence.TaskStore
	mu  sync.Mutex
	log []types.Event
}

func (s *recordingTaskStore) UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error) {
	task, err := s.TaskStore.UpdateStatus(ctx, event)
	if err == nil {
		s.record(event)
	}
	return task, err
}

func (s *recordingTaskStore) UpdateArtifact(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	task, err := s.TaskStore.UpdateArtifact(ctx, event)
	if err == nil {
		s.record(event)
	}
	return task, err
}

func (s *recordingTaskStore) record(ev types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, ev)
}

func (s *recordingTaskStore) applied() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.log...)
}

func drawEvent(rt *rapid.T, label string) types.Event {
	if rapid.Bool().Draw(rt, "is_status_"+label) {
		ev := &types.TaskStatusUpdateEvent{
			TaskID:    "task-1",
			ContextID: "ctx-1",
			Status: types.TaskStatus{
				State: rapid.SampledFrom([]types.TaskState{
					types.TaskStateWorking, types.TaskStateInputRequired,
				}).Draw(rt, "state_"+label),
			},
		}
		if rapid.Bool().Draw(rt, "has_message_"+label) {
			ev.Status.Message = types.NewTextMessage("msg-"+label, types.RoleAgent, "ctx-1", label)
		}
		if rapid.Bool().Draw(rt, "has_metadata_"+label) {
			key := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "key_"+label)
			ev.Metadata = types.Metadata{key: types.String(label)}
		}
		return ev
	}

	return &types.TaskArtifactUpdateEvent{
		TaskID:    "task-1",
		ContextID: "ctx-1",
		Artifact: &types.Artifact{
			ArtifactID: rapid.SampledFrom([]string{"art-1", "art-2", "art-3"}).Draw(rt, "artifact_"+label),
			Parts:      []types.Part{types.TextPart(label)},
		},
		Append: rapid.Bool().Draw(rt, "append_"+label),
	}
}

func TestEventProcessor_ConcurrentEventsMatchSequentialReplay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		producers := rapid.IntRange(2, 6).Draw(rt, "producers")
		perProducer := rapid.IntRange(1, 8).Draw(rt, "per_producer")

		batches := make([][]types.Event, producers)
		for i := range batches {
			for j := 0; j < perProducer; j++ {
				batches[i] = append(batches[i], drawEvent(rt, fmt.Sprintf("%d_%d", i, j)))
			}
		}

		ctx := context.Background()
		store := &recordingTaskStore{TaskStore: persistence.NewMemoryTaskStore()}
		initial := submittedTask("task-1", "ctx-1")
		initial.Metadata = types.Metadata{"seed": types.String("x")}
		require.NoError(rt, store.SaveTask(ctx, initial))

		locks := keyedmutex.New()
		messages := persistence.NewMemoryMessageStore()

		var wg sync.WaitGroup
		errs := make(chan error, producers*perProducer)
		for _, batch := range batches {
			p, err := NewEventProcessor(ProcessorConfig{
				ContextID: "ctx-1",
				TaskID:    "task-1",
				Tasks:     store,
				Messages:  messages,
				Locks:     locks,
			})
			require.NoError(rt, err)

			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, ev := range batch {
					if err := p.Process(ctx, ev); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			rt.Fatalf("event rejected: %v", err)
		}

		applied := store.applied()
		require.Len(rt, applied, producers*perProducer)

		expected := initial.Clone()
		for _, ev := range applied {
			switch e := ev.(type) {
			case *types.TaskStatusUpdateEvent:
				persistence.ApplyStatusUpdate(expected, e)
			case *types.TaskArtifactUpdateEvent:
				persistence.ApplyArtifactUpdate(expected, e)
			default:
				rt.Fatalf("unexpected event %T", ev)
			}
		}

		got, err := store.GetTask(ctx, "task-1", persistence.FullTask())
		require.NoError(rt, err)
		assert.Equal(rt, expected, got)
	})
}

func TestEventProcessor_DistinctTasksRunInParallel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a := f.processor(t, "ctx-1", "")
	b := f.processor(t, "ctx-1", "")
	require.NoError(t, a.SendTask(ctx, submittedTask("task-a", "ctx-1")))
	require.NoError(t, b.SendTask(ctx, submittedTask("task-b", "ctx-1")))

	unlock, err := f.locks.Lock(ctx, "task-a")
	require.NoError(t, err)
	defer unlock()

	done := make(chan error, 1)
	go func() {
		_, err := b.SendStatusUpdate(ctx, statusEvent("task-b", "ctx-1", types.TaskStateWorking, nil, false))
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("update of task-b blocked on task-a's lock")
	}
}
