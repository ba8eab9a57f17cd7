package llm

import (
	"context"
	"strings"
)

// Client is the text-in, text-out view of a Provider. The agent uses it
// for non-streamed turns and collaborators use it for helper prompts.
type Client struct {
	provider Provider
}

// NewClient wraps provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat returns the reply with surrounding whitespace removed.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	text, _, err := c.ChatWithUsage(ctx, messages)
	return strings.TrimSpace(text), err
}

// ChatWithUsage returns the reply as sent and the usage the backend
// reported, which may be nil.
func (c *Client) ChatWithUsage(ctx context.Context, messages []ChatMessage) (string, *TokenUsage, error) {
	resp, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	return resp.Content, resp.Usage, nil
}

// StreamChat forwards deltas to chunks and returns the usage reported at
// the end of the stream.
func (c *Client) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	return c.provider.StreamChat(ctx, messages, chunks)
}
