// OpenAI Chat Completions adapter built on go-openai. The same type serves
// any OpenAI-compatible endpoint, DeepSeek and local gateways included.

package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs.
type OpenAIProvider struct {
	sampling
	name   string
	client *openai.Client
}

// newOpenAI creates an adapter. An empty baseURL selects api.openai.com.
func newOpenAI(name, apiKey, baseURL string, s sampling) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		sampling: s,
		name:     name,
		client:   openai.NewClientWithConfig(config),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) request(messages []ChatMessage, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   int(p.maxTokens),
		Temperature: p.temperature,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	if stream {
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages, false))
	if err != nil {
		return LLMResponse{}, vendorError(p.name, "chat completion", err)
	}

	var out LLMResponse
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	out.Usage = openAIUsage(&resp.Usage)
	return out, nil
}

// StreamChat streams a chat completion. Usage arrives on the final chunk.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.request(messages, true))
	if err != nil {
		return nil, vendorError(p.name, "stream creation", err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, vendorError(p.name, "stream", err)
		}

		if u := openAIUsage(resp.Usage); u != nil {
			usage = u
		}
		for _, choice := range resp.Choices {
			if err := deliver(ctx, chunks, choice.Delta.Content); err != nil {
				return usage, err
			}
		}
	}
}

func openAIUsage(u *openai.Usage) *TokenUsage {
	if u == nil {
		return nil
	}
	return usageOf(int64(u.PromptTokens), int64(u.CompletionTokens), int64(u.TotalTokens))
}

var _ Provider = (*OpenAIProvider)(nil)
