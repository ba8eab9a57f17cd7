package observe

import (
	"context"
	"errors"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider installs a global [sdkmetric.MeterProvider] backed by a
// Prometheus exporter, so instruments created through [DefaultMetrics] can be
// scraped from the default Prometheus registry.
//
// Returns a shutdown function that flushes the provider. Call it in a defer
// from main().
func InitProvider(ctx context.Context) (shutdown func(context.Context) error, err error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(mp.ForceFlush(ctx), mp.Shutdown(ctx))
	}, nil
}
