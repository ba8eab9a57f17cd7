package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newCompatServer fakes the two Chat Completions endpoints go-openai calls.
func newCompatServer(t *testing.T, reply string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var requests []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		requests = append(requests, body)

		if stream, _ := body["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, word := range strings.SplitAfter(reply, " ") {
				chunk := map[string]any{
					"id": "c1", "object": "chat.completion.chunk", "model": body["model"],
					"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": word}}},
				}
				data, _ := json.Marshal(chunk)
				fmt.Fprintf(w, "data: %s\n\n", data)
			}
			usage := map[string]any{
				"id": "c1", "object": "chat.completion.chunk", "model": body["model"],
				"choices": []any{},
				"usage":   map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
			}
			data, _ := json.Marshal(usage)
			fmt.Fprintf(w, "data: %s\n\n", data)
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "c1", "object": "chat.completion", "model": body["model"],
			"choices": []any{map[string]any{
				"index": 0, "finish_reason": "stop",
				"message": map[string]any{"role": "assistant", "content": reply},
			}},
			"usage": map[string]any{"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestOpenAICompatibleChat(t *testing.T) {
	srv, requests := newCompatServer(t, "[CMDRET~movie_lookup~Stargate~title,year]")
	p, err := NewProviderBuilder(ProviderDeepSeek).Model(ModelDeepSeekChat).MaxTokens(256).BaseURL(srv.URL).APIKey("sk-test")
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := p.Chat(ctx, []ChatMessage{
		SystemMessage("instructions"),
		UserMessage("add stargate"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "[CMDRET~movie_lookup~Stargate~title,year]" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if p.Name() != "deepseek" {
		t.Errorf("expected name 'deepseek', got %q", p.Name())
	}

	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	msgs, _ := (*requests)[0]["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages on the wire, got %d", len(msgs))
	}
}

func TestOpenAICompatibleStreamChat(t *testing.T) {
	srv, _ := newCompatServer(t, "Sure, adding it now [CMD~movie_post~2001~4]")
	p, err := ProviderOpenAI.Model(ModelOpenAIGPT4o).MaxTokens(256).BaseURL(srv.URL).APIKey("sk-test")
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chunks := make(chan string, 64)
	usage, err := p.StreamChat(ctx, []ChatMessage{UserMessage("hi")}, chunks)
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	close(chunks)

	var got strings.Builder
	n := 0
	for c := range chunks {
		got.WriteString(c)
		n++
	}
	if got.String() != "Sure, adding it now [CMD~movie_post~2001~4]" {
		t.Errorf("unexpected streamed text %q", got.String())
	}
	if n < 2 {
		t.Errorf("expected several chunks, got %d", n)
	}
	if usage == nil || usage.PromptTokens != 7 {
		t.Errorf("unexpected usage %+v", usage)
	}
}

func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	testKey := "sk-test-invalid-key-12345xyz"
	p, err := ProviderOpenAI.Model(ModelOpenAIGPT4o).MaxTokens(100).BaseURL(srv.URL).APIKey(testKey)
	if err != nil {
		t.Fatalf("build provider: %v", err)
	}

	_, err = p.Chat(context.Background(), []ChatMessage{UserMessage("test")})
	if err == nil {
		t.Fatal("expected error for rejected key")
	}
	if strings.Contains(err.Error(), testKey) {
		t.Errorf("error message leaked API key: %v", err)
	}
	if strings.Contains(err.Error(), "Authorization:") {
		t.Errorf("error exposed Authorization header: %v", err)
	}
}

func TestToAnthropic(t *testing.T) {
	msgs := []ChatMessage{
		SystemMessage("persona"),
		SystemMessage("commands"),
		UserMessage("add stargate"),
		AssistantMessage("[CMDRET~movie_lookup~Stargate~id]"),
		SystemMessage("[RES~Stargate;unavailable]"),
	}

	converted, system := toAnthropic(msgs)
	if system != "persona\n\ncommands" {
		t.Errorf("unexpected system prompt %q", system)
	}
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if string(converted[2].Role) != RoleUser {
		t.Errorf("late system message should become a user turn, got role %q", converted[2].Role)
	}
}

func TestToAnthropicMergesSameRole(t *testing.T) {
	msgs := []ChatMessage{
		UserMessage("Chat History: hello"),
		AssistantMessage("noted"),
		UserMessage("first"),
		UserMessage("second"),
	}

	converted, _ := toAnthropic(msgs)
	if len(converted) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(converted))
	}
	if len(converted[2].Content) != 2 {
		t.Errorf("expected merged user turn with 2 blocks, got %d", len(converted[2].Content))
	}
}

func TestToGemini(t *testing.T) {
	msgs := []ChatMessage{
		SystemMessage("persona"),
		UserMessage("hi"),
		AssistantMessage("hello"),
		SystemMessage("[RES~No results]"),
	}

	contents, system := toGemini(msgs)
	if system != "persona" {
		t.Errorf("unexpected system instruction %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant should map to model role, got %q", contents[1].Role)
	}
	if contents[2].Role != "user" {
		t.Errorf("late system message should map to user role, got %q", contents[2].Role)
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]ChatMessage{
		SystemMessage("persona"),
		UserMessage("hi"),
		SystemMessage("[RES~No results]"),
		AssistantMessage("ok"),
	})
	if system != "persona" {
		t.Errorf("unexpected system %q", system)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].role != RoleUser || len(turns[0].parts) != 2 {
		t.Errorf("expected merged user turn, got %+v", turns[0])
	}
	if turns[1].role != RoleAssistant {
		t.Errorf("expected assistant turn, got %q", turns[1].role)
	}
}

func TestUsageOf(t *testing.T) {
	if u := usageOf(0, 0, 0); u != nil {
		t.Errorf("expected nil usage, got %+v", u)
	}
	u := usageOf(5, 2, 0)
	if u == nil || u.TotalTokens != 7 {
		t.Errorf("expected derived total 7, got %+v", u)
	}
}
