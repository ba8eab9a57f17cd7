// Anthropic Messages API adapter built on anthropic-sdk-go.
//
// Information Hiding:
// - Top-level system field versus in-conversation command results
// - Event union decoding while streaming

package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	sampling
	client anthropic.Client
}

func newAnthropic(apiKey string, s sampling) *AnthropicProvider {
	return &AnthropicProvider{
		sampling: s,
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) params(messages []ChatMessage) anthropic.MessageNewParams {
	turns, system := toAnthropic(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(p.maxTokens),
		Messages:    turns,
		Temperature: anthropic.Float(float64(p.temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(messages))
	if err != nil {
		return LLMResponse{}, vendorError("anthropic", "chat completion", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	return LLMResponse{
		Content: text.String(),
		Usage:   usageOf(message.Usage.InputTokens, message.Usage.OutputTokens, 0),
	}, nil
}

// StreamChat streams a chat completion. Input tokens are reported when the
// message starts, output tokens when it ends.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages))
	defer stream.Close()

	var input, output int64
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			input = event.Message.Usage.InputTokens
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := deliver(ctx, chunks, delta.Text); err != nil {
					return usageOf(input, output, 0), err
				}
			}
		case anthropic.MessageDeltaEvent:
			output = event.Usage.OutputTokens
		}
	}

	usage := usageOf(input, output, 0)
	if err := stream.Err(); err != nil {
		return usage, vendorError("anthropic", "stream", err)
	}
	return usage, nil
}

// toAnthropic maps messages onto Messages API turns, one text block per
// original message.
func toAnthropic(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	system, turns := splitSystem(messages)

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, len(t.parts))
		for i, part := range t.parts {
			blocks[i] = anthropic.NewTextBlock(part)
		}
		if t.role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, system
}

var _ Provider = (*AnthropicProvider)(nil)
