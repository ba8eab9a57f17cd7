// Package observe provides OpenTelemetry metrics for CineMatic: model
// invocations, command dispatches and orchestration depth.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is backed by
// the global meter provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CineMatic metrics.
const meterName = "github.com/richinex/cinematic"

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// ModelInvocations counts chat completions. Attributes: module, provider, status.
	ModelInvocations metric.Int64Counter

	// ModelDuration tracks chat completion latency in seconds.
	ModelDuration metric.Float64Histogram

	// ModelTokens counts tokens. Attributes: module, kind (prompt|completion).
	ModelTokens metric.Int64Counter

	// CommandDispatches counts dispatched commands. Attributes: operation, class, status.
	CommandDispatches metric.Int64Counter

	// CommandDuration tracks collaborator call latency in seconds.
	CommandDuration metric.Float64Histogram

	// TurnDepth records the final recursion depth of each interaction.
	TurnDepth metric.Int64Histogram
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ModelInvocations, err = m.Int64Counter("cinematic.model.invocations",
		metric.WithDescription("Chat completion requests sent to the model provider."),
	); err != nil {
		return nil, err
	}
	if met.ModelDuration, err = m.Float64Histogram("cinematic.model.duration",
		metric.WithDescription("Latency of chat completion requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelTokens, err = m.Int64Counter("cinematic.model.tokens",
		metric.WithDescription("Tokens consumed by chat completions."),
	); err != nil {
		return nil, err
	}
	if met.CommandDispatches, err = m.Int64Counter("cinematic.command.dispatches",
		metric.WithDescription("Commands dispatched to collaborators."),
	); err != nil {
		return nil, err
	}
	if met.CommandDuration, err = m.Float64Histogram("cinematic.command.duration",
		metric.WithDescription("Latency of collaborator calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDepth, err = m.Int64Histogram("cinematic.turn.depth",
		metric.WithDescription("Recursion depth reached per user interaction."),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordModelCall records one completion request.
func (m *Metrics) RecordModelCall(ctx context.Context, module, provider, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("provider", provider),
		attribute.String("status", status),
	)
	m.ModelInvocations.Add(ctx, 1, attrs)
	m.ModelDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTokens records prompt and completion token counts for module.
func (m *Metrics) RecordTokens(ctx context.Context, module string, prompt, completion uint32) {
	m.ModelTokens.Add(ctx, int64(prompt), metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("kind", "prompt"),
	))
	m.ModelTokens.Add(ctx, int64(completion), metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("kind", "completion"),
	))
}

// RecordDispatch records one collaborator call.
func (m *Metrics) RecordDispatch(ctx context.Context, operation, class, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("class", class),
		attribute.String("status", status),
	)
	m.CommandDispatches.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordDepth records the depth an interaction finished at.
func (m *Metrics) RecordDepth(ctx context.Context, depth int) {
	m.TurnDepth.Record(ctx, int64(depth))
}
