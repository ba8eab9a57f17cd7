package observe

import (
	"context"
	"math"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func hasAttr(set attribute.Set, key, want string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == want
}

func TestRecordModelCall(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordModelCall(ctx, "thread", "openai", "ok", 200*time.Millisecond)
	m.RecordModelCall(ctx, "thread", "openai", "ok", 300*time.Millisecond)
	m.RecordModelCall(ctx, "thread", "openai", "error", time.Second)

	rm := collect(t, reader)
	got := findMetric(rm, "cinematic.model.invocations")
	if got == nil {
		t.Fatal("cinematic.model.invocations not found")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", got.Data)
	}

	var okCount, errCount int64
	for _, dp := range sum.DataPoints {
		switch {
		case hasAttr(dp.Attributes, "status", "ok"):
			okCount += dp.Value
		case hasAttr(dp.Attributes, "status", "error"):
			errCount += dp.Value
		}
	}
	if okCount != 2 || errCount != 1 {
		t.Errorf("ok=%d error=%d, want 2 and 1", okCount, errCount)
	}

	hist := findMetric(rm, "cinematic.model.duration")
	if hist == nil {
		t.Fatal("cinematic.model.duration not found")
	}
}

func TestRecordDispatchAndDepth(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDispatch(ctx, "movie_lookup", "return", "ok", 10*time.Millisecond)
	m.RecordDepth(ctx, 3)

	rm := collect(t, reader)
	dispatches := findMetric(rm, "cinematic.command.dispatches")
	if dispatches == nil {
		t.Fatal("cinematic.command.dispatches not found")
	}
	sum := dispatches.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || !hasAttr(sum.DataPoints[0].Attributes, "operation", "movie_lookup") {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}

	depth := findMetric(rm, "cinematic.turn.depth")
	if depth == nil {
		t.Fatal("cinematic.turn.depth not found")
	}
	h := depth.Data.(metricdata.Histogram[int64])
	if len(h.DataPoints) != 1 || h.DataPoints[0].Sum != 3 {
		t.Errorf("unexpected depth histogram: %+v", h.DataPoints)
	}
}

func TestCost(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model      string
		prompt     uint32
		completion uint32
		want       float64
	}{
		{"gpt-4-0613", 1000, 1000, 0.09},
		{"gpt-3.5-turbo-0301", 500, 500, 0.002},
		{"gpt-4o-mini-2024", 1000, 0, 0.00015},
		{"some-local-model", 1000, 0, 0.03},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got := Cost(tt.model, tt.prompt, tt.completion)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}
