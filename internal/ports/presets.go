package ports

import (
	"log/slog"
	"net/http"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/presets"
	"github.com/Amund211/atlas/internal/ratelimiting"
)

type presetsResponse struct {
	Current string                  `json:"current"`
	Presets []domain.GraphicsPreset `json:"presets"`
}

func MakeGetPresetsHandler(
	current domain.GraphicsPreset,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	logger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := ComposeMiddlewares(
		logging.NewRequestLoggerMiddleware(logger),
		sentryMiddleware,
		buildMetricsMiddleware("presets"),
		NewAllowedMethodsMiddleware(http.MethodGet),
		NewRateLimitMiddleware(ipRateLimiter, nil),
	)

	handler := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, presetsResponse{
			Current: current.Name,
			Presets: presets.All(),
		})
	}

	return middleware(handler)
}
