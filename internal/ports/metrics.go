package ports

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type portsMetricsCollection struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	// How old the frame snapshot handed out by the diagnostics endpoint was
	snapshotAge metric.Float64Histogram
}

var metrics portsMetricsCollection

func init() {
	meter := otel.Meter("atlas/ports")

	mustCreate := func(name string, err error) {
		if err != nil {
			panic(fmt.Errorf("failed to create %s metric: %w", name, err))
		}
	}

	requestCount, err := meter.Int64Counter(
		"ports/request_count",
		metric.WithDescription("Requests to the diagnostics server by endpoint and status"),
	)
	mustCreate("request count", err)

	requestDuration, err := meter.Float64Histogram(
		"ports/request_duration_seconds",
		metric.WithDescription("Processing time for diagnostics server requests"),
		metric.WithUnit("s"),
	)
	mustCreate("request duration", err)

	snapshotAge, err := meter.Float64Histogram(
		"ports/diagnostics_snapshot_age_seconds",
		metric.WithDescription("Time since the served frame snapshot was taken. Grows while the frame loop is stalled."),
		metric.WithUnit("s"),
	)
	mustCreate("snapshot age", err)

	metrics = portsMetricsCollection{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		snapshotAge:     snapshotAge,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// buildMetricsMiddleware records requests under the endpoint name rather than the raw path,
// so unknown paths do not create new series.
func buildMetricsMiddleware(endpoint string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next(recorder, r)

			attributes := metric.WithAttributes(
				attribute.String("endpoint", endpoint),
				attribute.String("method", r.Method),
				attribute.Int("status", recorder.status),
			)
			metrics.requestCount.Add(r.Context(), 1, attributes)
			metrics.requestDuration.Record(r.Context(), time.Since(start).Seconds(), attributes)
		}
	}
}
