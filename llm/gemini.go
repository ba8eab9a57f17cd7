// Google Gemini adapter built on google.golang.org/genai.

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	sampling
	client *genai.Client
}

func newGemini(apiKey string, s sampling) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{sampling: s, client: client}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

func (p *GeminiProvider) config(system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: int32(p.maxTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return config
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	contents, system := toGemini(messages)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, p.config(system))
	if err != nil {
		return LLMResponse{}, vendorError("gemini", "chat completion", err)
	}
	return LLMResponse{Content: resp.Text(), Usage: geminiUsage(resp)}, nil
}

// StreamChat streams a chat completion. Each response carries the usage
// so far; the last one wins.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	contents, system := toGemini(messages)

	var usage *TokenUsage
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, p.config(system)) {
		if err != nil {
			return usage, vendorError("gemini", "stream", err)
		}
		if u := geminiUsage(resp); u != nil {
			usage = u
		}
		if err := deliver(ctx, chunks, resp.Text()); err != nil {
			return usage, err
		}
	}
	return usage, nil
}

func geminiUsage(resp *genai.GenerateContentResponse) *TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	return usageOf(int64(m.PromptTokenCount), int64(m.CandidatesTokenCount), int64(m.TotalTokenCount))
}

// toGemini maps messages onto Gemini contents, one text part per original
// message. Assistant turns use the model role.
func toGemini(messages []ChatMessage) ([]*genai.Content, string) {
	system, turns := splitSystem(messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		parts := make([]*genai.Part, len(t.parts))
		for i, part := range t.parts {
			parts[i] = genai.NewPartFromText(part)
		}
		var role genai.Role = genai.RoleUser
		if t.role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents, system
}

var _ Provider = (*GeminiProvider)(nil)
