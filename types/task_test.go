package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskState(t *testing.T) {
	tests := []struct {
		in   string
		want TaskState
	}{
		{"submitted", TaskStateSubmitted},
		{" Input-Required ", TaskStateInputRequired},
		{"COMPLETED", TaskStateCompleted},
		{"rejected", TaskStateRejected},
		{"paused", TaskStateUnknown},
		{"", TaskStateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTaskState(tt.in))
		})
	}
}

func TestTaskState_UnmarshalJSON(t *testing.T) {
	var status TaskStatus
	require.NoError(t, json.Unmarshal([]byte(`{"state":"working"}`), &status))
	assert.Equal(t, TaskStateWorking, status.State)

	require.NoError(t, json.Unmarshal([]byte(`{"state":"exploded"}`), &status))
	assert.Equal(t, TaskStateUnknown, status.State)
	assert.False(t, status.State.IsTerminal())

	assert.Error(t, json.Unmarshal([]byte(`{"state":7}`), &status))
}
