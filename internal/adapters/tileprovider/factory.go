package tileprovider

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/atlas/internal/config"
	"github.com/Amund211/atlas/internal/ratelimiting"
)

// NewTileProviderOrMock builds the configured tile source, backed by the MBTiles store when one is configured.
// The returned func releases its resources.
func NewTileProviderOrMock(conf config.Config, httpClient HttpClient, logger *slog.Logger) (TileProvider, func(), error) {
	if conf.MockSources() {
		logger.Info("Using mock tiles")
		return NewMock(), func() {}, nil
	}

	// renderd queues requests per host, keep a steady trickle
	limiter, stopLimiter := ratelimiting.NewTokenBucketRateLimiter(50, 100)

	upstream, stopCooldowns, err := NewHTTP(httpClient, conf.TileServerURL(), limiter, defaultMeter(), time.Now)
	if err != nil {
		stopLimiter()
		return nil, nil, fmt.Errorf("failed to create tile provider: %w", err)
	}
	stop := func() {
		stopCooldowns()
		stopLimiter()
	}

	if conf.MBTilesPath() == "" {
		return upstream, stop, nil
	}

	store, err := OpenMBTiles(conf.MBTilesPath())
	if err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to open tile store: %w", err)
	}
	logger.Info("Using tile store", "path", conf.MBTilesPath())

	return NewLayered(store, upstream), func() {
		stop()
		if err := store.Close(); err != nil {
			logger.Error("Failed to close tile store", "error", err.Error())
		}
	}, nil
}
