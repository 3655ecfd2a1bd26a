package tileprovider

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type tileMetricsCollection struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	cooldowns       metric.Int64Counter
}

func setupTileMetrics(meter metric.Meter) (tileMetricsCollection, error) {
	requests, err := meter.Int64Counter(
		"tileprovider/requests",
		metric.WithDescription("Tile requests by response status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return tileMetricsCollection{}, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"tileprovider/request_duration",
		metric.WithDescription("Duration of tile requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return tileMetricsCollection{}, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	cooldowns, err := meter.Int64Counter(
		"tileprovider/cooldowns",
		metric.WithDescription("Times a tile host was put on cooldown"),
		metric.WithUnit("{cooldown}"),
	)
	if err != nil {
		return tileMetricsCollection{}, fmt.Errorf("failed to create cooldowns counter: %w", err)
	}

	return tileMetricsCollection{
		requests:        requests,
		requestDuration: requestDuration,
		cooldowns:       cooldowns,
	}, nil
}

func defaultMeter() metric.Meter {
	return otel.Meter("atlas/tileprovider")
}
