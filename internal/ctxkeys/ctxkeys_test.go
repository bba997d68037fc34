package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok, "empty id counts as missing")

	id, ok := RequestID(WithRequestID(context.Background(), "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestSessionID_IndependentOfRequestID(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")

	id, ok := SessionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", id)

	req, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", req)
}
