// LLM Provider Factory - builder API for creating LLM providers.
//
//	// Defaults, API key from environment
//	p, err := llm.ProviderOpenAI.FromEnv()
//
//	// Main conversation model vs. cheap helper model
//	main, err := llm.ProviderOpenAI.Model(llm.ModelOpenAIGPT4o).Temperature(0.7).FromEnv()
//	helper, err := llm.ProviderOpenAI.Model(llm.ModelOpenAIGPT4oMini).MaxTokens(1024).FromEnv()
//
//	// OpenAI-compatible gateway
//	p, err := llm.ProviderOpenAI.Model("llama3").BaseURL("http://localhost:8080/v1").APIKey("x")

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// vendor describes how to reach one provider.
type vendor struct {
	name         string
	aliases      []string
	envVar       string
	defaultModel string
	// defaultBaseURL is non-empty for vendors reached through the
	// OpenAI-compatible adapter.
	defaultBaseURL string
	build          func(apiKey, baseURL string, s sampling) (Provider, error)
}

var vendors = map[ProviderType]vendor{
	ProviderOpenAI: {
		name:         "openai",
		aliases:      []string{"gpt"},
		envVar:       "OPENAI_API_KEY",
		defaultModel: ModelOpenAIGPT4o,
		build:        buildOpenAI("openai"),
	},
	ProviderAnthropic: {
		name:         "anthropic",
		aliases:      []string{"claude"},
		envVar:       "ANTHROPIC_API_KEY",
		defaultModel: ModelAnthropicClaudeSonnet4,
		build: func(apiKey, _ string, s sampling) (Provider, error) {
			return newAnthropic(apiKey, s), nil
		},
	},
	ProviderDeepSeek: {
		name:           "deepseek",
		envVar:         "DEEPSEEK_API_KEY",
		defaultModel:   ModelDeepSeekChat,
		defaultBaseURL: deepseekBaseURL,
		build:          buildOpenAI("deepseek"),
	},
	ProviderGemini: {
		name:         "gemini",
		aliases:      []string{"google"},
		envVar:       "GEMINI_API_KEY",
		defaultModel: ModelGeminiFlash25,
		build: func(apiKey, _ string, s sampling) (Provider, error) {
			p, err := newGemini(apiKey, s)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	},
}

func buildOpenAI(name string) func(apiKey, baseURL string, s sampling) (Provider, error) {
	return func(apiKey, baseURL string, s sampling) (Provider, error) {
		return newOpenAI(name, apiKey, baseURL, s), nil
	}
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	if v, ok := vendors[p]; ok {
		return v.name
	}
	return "unknown"
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	return vendors[p].envVar
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	return vendors[p].defaultModel
}

// ParseProviderType parses a provider name or alias (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, v := range vendors {
		if v.name == s {
			return t, nil
		}
		for _, alias := range v.aliases {
			if alias == s {
				return t, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key (uses defaults for everything else).
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType ProviderType
	baseURL      string
	settings     sampling
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{providerType: providerType}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.settings.model = model
	return b
}

// BaseURL points an OpenAI or DeepSeek provider at a compatible endpoint.
// Ignored for other providers.
func (b *ProviderBuilder) BaseURL(url string) *ProviderBuilder {
	b.baseURL = url
	return b
}

// MaxTokens sets the completion length limit. Zero means 4096.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.settings.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	envVar := b.providerType.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", b.providerType, envVar)
	}
	return b.APIKey(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	v, ok := vendors[b.providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}

	s := b.settings
	if s.model == "" {
		s.model = v.defaultModel
	}
	if s.maxTokens == 0 {
		s.maxTokens = 4096
	}
	s.temperature = 0.7
	if b.temperature != nil {
		s.temperature = *b.temperature
	}

	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = v.defaultBaseURL
	}
	return v.build(key, baseURL, s)
}

// OpenAI model identifiers
const (
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
)

// Anthropic model identifiers
const (
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelAnthropicClaudeHaiku35 = "claude-3-5-haiku-latest"
)

// DeepSeek model identifiers
const (
	ModelDeepSeekChat     = "deepseek-chat"
	ModelDeepSeekReasoner = "deepseek-reasoner"
)

// Gemini model identifiers
const (
	ModelGeminiFlash25 = "gemini-2.5-flash"
	ModelGeminiPro25   = "gemini-2.5-pro"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"
