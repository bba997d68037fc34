package types

import (
	"encoding/json"
	"strings"
	"time"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateRejected      TaskState = "rejected"
	TaskStateUnknown       TaskState = "unknown"
)

// IsTerminal reports whether no further transition is expected from s.
// Stores never infer finality from it; the final flag on status events decides.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return true
	default:
		return false
	}
}

// ParseTaskState maps a wire string to a TaskState, returning TaskStateUnknown
// for anything unrecognised.
func ParseTaskState(s string) TaskState {
	switch st := TaskState(strings.ToLower(strings.TrimSpace(s))); st {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled, TaskStateRejected:
		return st
	default:
		return TaskStateUnknown
	}
}

// UnmarshalJSON decodes a state string; unrecognised values become
// TaskStateUnknown.
func (s *TaskState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseTaskState(raw)
	return nil
}

// TaskStatus is the current state of a task plus an optional agent message.
type TaskStatus struct {
	State     TaskState  `json:"state"`
	Message   *Message   `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Clone returns a deep copy of s.
func (s TaskStatus) Clone() TaskStatus {
	out := s
	out.Message = s.Message.Clone()
	if s.Timestamp != nil {
		ts := *s.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// Artifact is an output produced by a task. ArtifactID is its identity.
type Artifact struct {
	ArtifactID  string   `json:"artifactId"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Parts       []Part   `json:"parts"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of a. Nil stays nil.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	out := *a
	out.Parts = CloneParts(a.Parts)
	out.Metadata = a.Metadata.Clone()
	return &out
}

// Task is a unit of agent work tracked through its status state machine.
// Status always holds the most recently applied status; History holds the
// messages of superseded statuses, oldest first.
type Task struct {
	ID        string      `json:"id"`
	ContextID string      `json:"contextId"`
	Status    TaskStatus  `json:"status"`
	History   []*Message  `json:"history,omitempty"`
	Artifacts []*Artifact `json:"artifacts,omitempty"`
	Metadata  Metadata    `json:"metadata,omitempty"`
}

// Clone returns a deep copy of t. Nil stays nil.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Status = t.Status.Clone()
	if t.History != nil {
		out.History = make([]*Message, len(t.History))
		for i, m := range t.History {
			out.History[i] = m.Clone()
		}
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]*Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			out.Artifacts[i] = a.Clone()
		}
	}
	out.Metadata = t.Metadata.Clone()
	return &out
}

// FindArtifact returns the index of the artifact with the given id, or -1.
func (t *Task) FindArtifact(artifactID string) int {
	for i, a := range t.Artifacts {
		if a != nil && a.ArtifactID == artifactID {
			return i
		}
	}
	return -1
}

// EventKind implements Event.
func (*Task) EventKind() string { return "task" }
