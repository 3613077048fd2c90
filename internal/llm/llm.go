package llm

import (
	"context"
	"errors"
)

// ErrEmptyReply is returned when a provider answers without any text.
var ErrEmptyReply = errors.New("llm: empty reply")

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client defines the interface for LLM providers.
type Client interface {
	// Generate returns the assistant's next message for the conversation.
	Generate(ctx context.Context, messages []Message) (string, error)
}
