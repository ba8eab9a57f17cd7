package llm_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/richinex/cinematic/llm"
	"github.com/richinex/cinematic/llm/mock"
	"github.com/richinex/cinematic/observe"
)

func TestMeteredRecordsCalls(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	inner := mock.New(
		mock.Reply{Content: "hello", Usage: &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
		mock.Reply{Err: errors.New("boom")},
	)
	p := llm.NewMetered(inner, "thread", metrics)

	resp, err := p.Chat(context.Background(), []llm.ChatMessage{llm.UserMessage("hi")})
	if err != nil || resp.Content != "hello" {
		t.Fatalf("Chat = %q, %v", resp.Content, err)
	}
	if _, err := p.Chat(context.Background(), nil); err == nil {
		t.Fatal("expected wrapped error to pass through")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var invocations, tokens int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "cinematic.model.invocations":
					invocations += dp.Value
				case "cinematic.model.tokens":
					tokens += dp.Value
				}
			}
		}
	}
	if invocations != 2 {
		t.Errorf("expected 2 invocations, got %d", invocations)
	}
	if tokens != 15 {
		t.Errorf("expected 15 tokens, got %d", tokens)
	}
}
