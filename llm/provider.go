// Package llm provides the model provider abstraction the orchestration loop talks to.
//
// Information Hiding:
// - API client initialization and authentication
// - Request/response format conversion per vendor
// - Streaming transport details (SSE, iterators, event unions)

package llm

import (
	"context"
)

// Provider is a chat-completion backend. Implementations differ only in
// transport; every one of them accepts the same ordered message list and
// returns plain completion text.
type Provider interface {
	// Name returns the provider name (for logging/metrics).
	Name() string

	// Model returns the model identifier requests are sent to.
	Model() string

	// Chat runs a single, non-streamed completion.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// StreamChat streams a completion, sending text deltas to chunks as they
	// arrive. The channel is not closed by the provider.
	// Returns token usage when the backend reports it.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}

// sampling holds the request settings shared by every vendor adapter.
type sampling struct {
	model       string
	maxTokens   uint32
	temperature float32
}

// Model returns the model identifier requests are sent to.
func (s sampling) Model() string {
	return s.model
}
