package provider

import (
	"context"
	"errors"
)

// Message roles accepted by the completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingAPIKey is returned before any network I/O when no provider
// credential is configured.
var ErrMissingAPIKey = errors.New("provider API key is not configured")

// Message is one entry of the prompt context sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Request describes a single streaming completion call.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Stream yields completion fragments as the provider flushes them. Recv
// returns io.EOF when the generation is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client opens streaming completion calls against the AI provider.
type Client interface {
	StreamCompletion(ctx context.Context, req Request) (Stream, error)
}
