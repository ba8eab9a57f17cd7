// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/richinex/cinematic/llm"
)

// ErrExhausted is returned when a Provider runs out of scripted replies and
// has no Fallback.
var ErrExhausted = errors.New("mock: no scripted reply left")

// Reply is one scripted completion.
type Reply struct {
	Content string
	// Chunks, when set, is what StreamChat sends instead of Content in one piece.
	Chunks []string
	Err    error
	Usage  *llm.TokenUsage
}

// Provider replays Replies in order and records every request.
// Safe for concurrent use.
type Provider struct {
	ProviderName string
	ModelName    string

	// Respond, when non-nil, computes the reply from the request and takes
	// precedence over Replies.
	Respond func(messages []llm.ChatMessage) Reply

	// Fallback is returned once Replies are exhausted.
	Fallback *Reply

	mu      sync.Mutex
	replies []Reply
	calls   [][]llm.ChatMessage
}

// New creates a Provider that answers with replies in order.
func New(replies ...Reply) *Provider {
	return &Provider{replies: replies}
}

// Texts creates a Provider that answers with the given completion texts in order.
func Texts(texts ...string) *Provider {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Content: t}
	}
	return New(replies...)
}

// Name returns the provider name ("mock" by default).
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Model returns the model name ("mock-model" by default).
func (p *Provider) Model() string {
	if p.ModelName == "" {
		return "mock-model"
	}
	return p.ModelName
}

func (p *Provider) next(messages []llm.ChatMessage) Reply {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make([]llm.ChatMessage, len(messages))
	copy(snapshot, messages)
	p.calls = append(p.calls, snapshot)

	if p.Respond != nil {
		return p.Respond(snapshot)
	}
	if len(p.replies) == 0 {
		if p.Fallback != nil {
			return *p.Fallback
		}
		return Reply{Err: ErrExhausted}
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r
}

// Chat returns the next scripted reply.
func (p *Provider) Chat(_ context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	r := p.next(messages)
	if r.Err != nil {
		return llm.LLMResponse{}, r.Err
	}
	return llm.LLMResponse{Content: r.Content, Usage: r.Usage}, nil
}

// StreamChat sends the next scripted reply as chunks.
func (p *Provider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	r := p.next(messages)
	if r.Err != nil {
		return nil, r.Err
	}
	parts := r.Chunks
	if len(parts) == 0 && r.Content != "" {
		parts = []string{r.Content}
	}
	for _, part := range parts {
		select {
		case chunks <- part:
		case <-ctx.Done():
			return r.Usage, ctx.Err()
		}
	}
	return r.Usage, nil
}

// Calls returns a copy of every request received so far.
func (p *Provider) Calls() [][]llm.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]llm.ChatMessage, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of requests received so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

var _ llm.Provider = (*Provider)(nil)
