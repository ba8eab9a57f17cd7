// Metered provider decorator.
//
// Information Hiding:
// - Usage accounting and cost estimation per call
// - Metric instrument attributes

package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/richinex/cinematic/observe"
)

// Metered wraps a Provider and records every call: latency and status as
// metrics, and token usage with an estimated cost as a log line tagged
// with the calling module.
type Metered struct {
	inner   Provider
	module  string
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewMetered wraps inner. A nil metrics uses observe.DefaultMetrics.
func NewMetered(inner Provider, module string, metrics *observe.Metrics) *Metered {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Metered{
		inner:   inner,
		module:  module,
		metrics: metrics,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for usage lines.
func (m *Metered) WithLogger(logger *slog.Logger) *Metered {
	m.logger = logger
	return m
}

// Name returns the wrapped provider name.
func (m *Metered) Name() string { return m.inner.Name() }

// Model returns the wrapped provider model.
func (m *Metered) Model() string { return m.inner.Model() }

// Chat forwards to the wrapped provider and records the call.
func (m *Metered) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	start := time.Now()
	resp, err := m.inner.Chat(ctx, messages)
	m.record(ctx, start, resp.Usage, err)
	return resp, err
}

// StreamChat forwards to the wrapped provider and records the call.
func (m *Metered) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	start := time.Now()
	usage, err := m.inner.StreamChat(ctx, messages, chunks)
	m.record(ctx, start, usage, err)
	return usage, err
}

func (m *Metered) record(ctx context.Context, start time.Time, usage *TokenUsage, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordModelCall(ctx, m.module, m.inner.Name(), status, time.Since(start))

	if err != nil {
		m.logger.Warn("model call failed", "module", m.module, "model", m.inner.Model(), "err", err)
		return
	}
	if usage == nil {
		m.logger.Debug("model call", "module", m.module, "model", m.inner.Model(), "usage", "unreported")
		return
	}

	m.metrics.RecordTokens(ctx, m.module, usage.PromptTokens, usage.CompletionTokens)
	m.logger.Info("model call",
		"module", m.module,
		"model", m.inner.Model(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"cost_usd", observe.Cost(m.inner.Model(), usage.PromptTokens, usage.CompletionTokens),
	)
}

var _ Provider = (*Metered)(nil)
