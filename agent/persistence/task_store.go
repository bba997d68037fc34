package persistence

import (
	"context"
	"fmt"

	"github.com/BaSui01/a2aengine/types"
)

// TaskStore defines the interface for A2A task persistence.
// Status and artifact updates are read-modify-write cycles; callers that
// run several producers for one task serialize them per task id.
type TaskStore interface {
	Store

	// GetTask retrieves a task by ID, projected according to query.
	// Returns ErrNotFound if the task does not exist.
	GetTask(ctx context.Context, taskID string, query TaskQuery) (*types.Task, error)

	// SaveTask stores a full task snapshot (create or replace)
	SaveTask(ctx context.Context, task *types.Task) error

	// UpdateStatus applies a status update event and returns the updated task.
	// Returns *TaskOperationError if the task does not exist.
	UpdateStatus(ctx context.Context, event *types.TaskStatusUpdateEvent) (*types.Task, error)

	// UpdateArtifact applies an artifact update event and returns the updated task.
	// Returns *TaskOperationError if the task does not exist.
	UpdateArtifact(ctx context.Context, event *types.TaskArtifactUpdateEvent) (*types.Task, error)

	// DeleteTask removes a task. Deleting an unknown task is not an error.
	DeleteTask(ctx context.Context, taskID string) error

	// ListByContext returns every task of a context in creation order
	ListByContext(ctx context.Context, contextID string) ([]*types.Task, error)
}

// TaskQuery controls which parts of a task GetTask returns.
type TaskQuery struct {
	// IncludeArtifacts returns the artifact list when true
	IncludeArtifacts bool

	// HistoryLength bounds the returned history to the most recent entries.
	// Nil omits history entirely.
	HistoryLength *int
}

// FullTask returns a query that includes artifacts and the whole history.
func FullTask() TaskQuery {
	all := -1
	return TaskQuery{IncludeArtifacts: true, HistoryLength: &all}
}

// WithHistory returns a copy of q bounded to n history entries. Negative n means all.
func (q TaskQuery) WithHistory(n int) TaskQuery {
	q.HistoryLength = &n
	return q
}

// ProjectTask returns a deep copy of task shaped by query.
func ProjectTask(task *types.Task, query TaskQuery) *types.Task {
	out := task.Clone()
	if out == nil {
		return nil
	}

	switch {
	case query.HistoryLength == nil:
		out.History = nil
	case *query.HistoryLength >= 0 && *query.HistoryLength < len(out.History):
		out.History = out.History[len(out.History)-*query.HistoryLength:]
	}

	if !query.IncludeArtifacts {
		out.Artifacts = nil
	}
	return out
}

// ApplyStatusUpdate moves the current status message onto the end of the
// history, installs the event status and shallow-merges event metadata.
// task is modified in place.
func ApplyStatusUpdate(task *types.Task, event *types.TaskStatusUpdateEvent) {
	if task.Status.Message != nil {
		task.History = append(task.History, task.Status.Message)
	}
	task.Status = event.Status.Clone()
	if len(event.Metadata) > 0 {
		task.Metadata = task.Metadata.Merge(event.Metadata)
	}
}

// ApplyArtifactUpdate merges an artifact event into task in place. An
// artifact id not seen before is appended regardless of the append flag;
// a known id has its parts replaced, or extended when Append is set,
// keeping its position. Event metadata is shallow-merged into the
// artifact's metadata.
func ApplyArtifactUpdate(task *types.Task, event *types.TaskArtifactUpdateEvent) {
	artifact := event.Artifact.Clone()

	idx := task.FindArtifact(artifact.ArtifactID)
	switch {
	case idx < 0:
		task.Artifacts = append(task.Artifacts, artifact)
		idx = len(task.Artifacts) - 1
	case event.Append:
		existing := task.Artifacts[idx]
		existing.Parts = append(existing.Parts, artifact.Parts...)
	default:
		task.Artifacts[idx].Parts = artifact.Parts
	}

	if len(event.Metadata) > 0 {
		target := task.Artifacts[idx]
		target.Metadata = target.Metadata.Merge(event.Metadata)
	}
}

func validateTask(task *types.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidInput)
	}
	if task.ID == "" {
		return fmt.Errorf("%w: task has no id", ErrInvalidInput)
	}
	return nil
}

func validateStatusEvent(event *types.TaskStatusUpdateEvent) error {
	if event == nil || event.TaskID == "" {
		return fmt.Errorf("%w: status event has no task id", ErrInvalidInput)
	}
	return nil
}

func validateArtifactEvent(event *types.TaskArtifactUpdateEvent) error {
	if event == nil || event.TaskID == "" {
		return fmt.Errorf("%w: artifact event has no task id", ErrInvalidInput)
	}
	if event.Artifact == nil || event.Artifact.ArtifactID == "" {
		return fmt.Errorf("%w: artifact event has no artifact id", ErrInvalidInput)
	}
	return nil
}

func unknownTask(op, taskID string) error {
	return &TaskOperationError{Op: op, TaskID: taskID, Err: ErrNotFound}
}
