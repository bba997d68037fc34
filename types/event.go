package types

// Event is anything an executing agent reports back: a Task snapshot, a
// status update, an artifact update or a Message.
type Event interface {
	EventKind() string
}

var (
	_ Event = (*Task)(nil)
	_ Event = (*Message)(nil)
	_ Event = (*TaskStatusUpdateEvent)(nil)
	_ Event = (*TaskArtifactUpdateEvent)(nil)
)

// TaskStatusUpdateEvent replaces a task's status. Final marks the last
// event of the task's run and is what triggers notifications.
type TaskStatusUpdateEvent struct {
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Metadata  Metadata   `json:"metadata,omitempty"`
	Final     bool       `json:"final"`
}

// EventKind implements Event.
func (*TaskStatusUpdateEvent) EventKind() string { return "status-update" }

// TaskArtifactUpdateEvent adds to or replaces one artifact of a task.
type TaskArtifactUpdateEvent struct {
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId"`
	Artifact  *Artifact `json:"artifact"`
	Append    bool      `json:"append,omitempty"`
	LastChunk bool      `json:"lastChunk,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// EventKind implements Event.
func (*TaskArtifactUpdateEvent) EventKind() string { return "artifact-update" }
