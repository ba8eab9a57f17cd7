package llm

import (
	"os"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"openai", ProviderOpenAI, false},
		{"GPT", ProviderOpenAI, false},
		{"claude", ProviderAnthropic, false},
		{"deepseek", ProviderDeepSeek, false},
		{"google", ProviderGemini, false},
		{"llama", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProviderType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseProviderType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuilderDefaults(t *testing.T) {
	p, err := ProviderDeepSeek.APIKey("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "deepseek" {
		t.Errorf("expected deepseek, got %q", p.Name())
	}
	if p.Model() != ModelDeepSeekChat {
		t.Errorf("expected default model %q, got %q", ModelDeepSeekChat, p.Model())
	}
}

func TestBuilderBaseURL(t *testing.T) {
	p, err := ProviderOpenAI.Model("local-model").BaseURL("http://localhost:9999/v1").APIKey("x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "local-model" {
		t.Errorf("expected local-model, got %q", p.Model())
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("expected *OpenAIProvider, got %T", p)
	}
}

func TestBuilderFromEnvMissingKey(t *testing.T) {
	original := os.Getenv("ANTHROPIC_API_KEY")
	os.Unsetenv("ANTHROPIC_API_KEY")
	defer os.Setenv("ANTHROPIC_API_KEY", original)

	if _, err := ProviderAnthropic.FromEnv(); err == nil {
		t.Error("expected error for missing API key")
	}
}
