// Package history is the append-only per-conversation message log. A
// conversation is a Redis list keyed by its conversation identifier; new
// messages are pushed to the front, so store order is most-recent-first and
// consumers that want chronological order must reverse.
package history

import (
	"context"
	"time"
)

// Message roles as stored on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored chat message. The wire shape is
// {"type": role, "data": {"content": text}, "timestamp": ts}.
// Messages are immutable once stored.
type Message struct {
	Type      string      `json:"type"`
	Data      MessageData `json:"data"`
	Timestamp string      `json:"timestamp,omitempty"`
}

type MessageData struct {
	Content string `json:"content"`
}

// NewMessage builds a message stamped with the current UTC time.
func NewMessage(role, content string) Message {
	return Message{
		Type:      role,
		Data:      MessageData{Content: content},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Store is the conversation log contract. Append is at-most-once: a failed
// append surfaces errx.ErrStoreUnavailable and is never retried silently.
type Store interface {
	// Append pushes message to the front of the conversation's log.
	Append(ctx context.Context, conversationID string, message Message) error

	// Range returns messages in store order (most-recent-first).
	// stop = -1 means "to the end". An empty conversation yields an empty
	// slice, not an error.
	Range(ctx context.Context, conversationID string, start, stop int64) ([]Message, error)

	// ListKeys returns all conversation identifiers matching "{prefix}-*".
	// The store imposes no ordering; callers must sort for presentation.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// Count returns the number of messages in the conversation.
	Count(ctx context.Context, conversationID string) (int64, error)
}
