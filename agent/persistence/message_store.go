package persistence

import (
	"context"

	"github.com/BaSui01/a2aengine/types"
)

// MessageStore defines the interface for the append-only per-context message log.
type MessageStore interface {
	Store

	// SaveMessage appends a message to its context log.
	// Returns *MessageOperationError if the message has no context id.
	SaveMessage(ctx context.Context, msg *types.Message) error

	// GetByContext returns a context's messages in insertion order.
	// An unknown context yields an empty slice.
	GetByContext(ctx context.Context, contextID string) ([]*types.Message, error)

	// DeleteByContext removes only the given context's messages
	DeleteByContext(ctx context.Context, contextID string) error
}

func validateMessage(msg *types.Message) error {
	if msg == nil {
		return &MessageOperationError{Op: "save", Err: ErrInvalidInput}
	}
	if msg.ContextID == "" {
		return &MessageOperationError{Op: "save", MessageID: msg.MessageID, Err: errMissingContextID}
	}
	return nil
}
