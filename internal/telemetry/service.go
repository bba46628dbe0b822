package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Service manages the OpenTelemetry meter provider. Metrics are exported in
// Prometheus format and served by the HTTP layer on /metrics.
type Service struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
}

// NewService creates a telemetry service with a Prometheus metrics exporter
func NewService(serviceName, serviceVersion string) (*Service, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		resource.Default().SchemaURL(),
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	// The exporter registers with the default Prometheus registerer, which
	// promhttp serves.
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	return &Service{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(serviceName),
	}, nil
}

// Meter returns the service meter for creating instruments
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// Shutdown flushes and stops the meter provider
func (s *Service) Shutdown(ctx context.Context) error {
	if s.meterProvider == nil {
		return nil
	}
	return s.meterProvider.Shutdown(ctx)
}
