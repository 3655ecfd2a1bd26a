package cache

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cacheMetricsCollection struct {
	attrs metric.MeasurementOption

	hits             metric.Int64Counter
	misses           metric.Int64Counter
	evictions        metric.Int64Counter
	gcs              metric.Int64Counter
	constructFailure metric.Int64Counter
	constructLatency metric.Float64Histogram
}

func setupCacheMetrics(name string) (cacheMetricsCollection, error) {
	meter := otel.Meter("atlas/cache")

	hits, err := meter.Int64Counter("cache/hits", metric.WithDescription("Retrieves answered from the cache"))
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	misses, err := meter.Int64Counter("cache/misses", metric.WithDescription("Values constructed in the background"))
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	evictions, err := meter.Int64Counter("cache/evictions")
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	gcs, err := meter.Int64Counter("cache/gcs", metric.WithDescription("Garbage collection passes"))
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	constructFailure, err := meter.Int64Counter(
		"cache/construct_failures",
		metric.WithDescription("Constructs that failed or produced a placeholder"),
	)
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	constructLatency, err := meter.Float64Histogram(
		"cache/construct_latency",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return cacheMetricsCollection{}, fmt.Errorf("failed to create metric: %w", err)
	}

	return cacheMetricsCollection{
		attrs: metric.WithAttributes(attribute.String("cache", name)),

		hits:             hits,
		misses:           misses,
		evictions:        evictions,
		gcs:              gcs,
		constructFailure: constructFailure,
		constructLatency: constructLatency,
	}, nil
}
