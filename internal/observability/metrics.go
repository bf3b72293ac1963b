// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics installs a global MeterProvider that is scraped through the
// returned /metrics handler. Each call uses its own Prometheus registry,
// which also carries the Go runtime and process collectors.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	registry := prom.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return handler, provider.Shutdown, nil
}

// RegisterActiveRuns publishes the number of executing runs as the
// mosaic.runs.active gauge.
func RegisterActiveRuns(count func() int) error {
	meter := otel.Meter("mosaic-controller")
	_, err := meter.Int64ObservableGauge("mosaic.runs.active",
		metric.WithDescription("Scheduler runs currently executing"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(count()))
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to register active runs gauge: %w", err)
	}
	return nil
}
