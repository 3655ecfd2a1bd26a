package ports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Amund211/atlas/internal/app"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/ratelimiting"
)

func MakeGetDiagnosticsHandler(
	getDiagnostics app.GetDiagnostics,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	logger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(logger),
		sentryMiddleware,
		buildMetricsMiddleware("diagnostics"),
		NewAllowedMethodsMiddleware(http.MethodGet),
		NewRateLimitMiddleware(ipRateLimiter, nil),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		diagnostics, ok := getDiagnostics()
		if !ok {
			writeJSONError(w, "No frame has been rendered yet", http.StatusServiceUnavailable)
			return
		}

		metrics.snapshotAge.Record(r.Context(), time.Since(diagnostics.Time).Seconds())
		writeJSON(w, r, http.StatusOK, diagnostics)
	}

	return middleware(handler)
}

// MakeForceGCHandler makes the next frame evict every resource that is out of view
func MakeForceGCHandler(
	requestGC func(),
	ipRateLimiter ratelimiting.RequestRateLimiter,
	logger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(logger),
		sentryMiddleware,
		buildMetricsMiddleware("gc"),
		NewAllowedMethodsMiddleware(http.MethodPost),
		NewRateLimitMiddleware(ipRateLimiter, nil),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).InfoContext(r.Context(), "Forcing garbage collection next frame")
		requestGC()

		w.WriteHeader(http.StatusAccepted)
	}

	return middleware(handler)
}
