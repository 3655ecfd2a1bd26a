package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Amund211/atlas/internal/adapters/buildingprovider"
	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/adapters/tileprovider"
	"github.com/Amund211/atlas/internal/adapters/tileserver"
	"github.com/Amund211/atlas/internal/app"
	"github.com/Amund211/atlas/internal/cache"
	"github.com/Amund211/atlas/internal/config"
	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/ledger"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/ports"
	"github.com/Amund211/atlas/internal/presets"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/Amund211/atlas/internal/ratelimiting"
	"github.com/Amund211/atlas/internal/reporting"
	"github.com/Amund211/atlas/internal/telemetry"
	"github.com/Amund211/atlas/internal/workqueue"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "golang.org/x/crypto/x509roots/fallback"
)

const (
	frameInterval  = time.Second / 30
	reportInterval = 10 * time.Second
)

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.AddToContext(reporting.AddHubToContext(ctx), logger)

	flush, err := reporting.NewSentryOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry")

	if config.TelemetryEnabled() {
		shutdown, err := telemetry.SetupOTelSDK(ctx, "atlas", 1.0/100.0)
		if err != nil {
			fail("Failed to initialize OpenTelemetry", "error", err.Error())
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	preset := presets.LoadSaved(config.PresetsPath(), logger)
	logger.Info("Using graphics preset", "preset", preset.Name)

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if config.ManageTileServer() && !config.MockSources() {
		manager := tileserver.NewManager(tileserver.ExecRunner{}, httpClient, config.TileServerURL(), logger)
		if err := manager.MaybeStart(ctx); err != nil {
			fail("Failed to start tile server", "error", err.Error())
		}
		if err := manager.WaitUntilReady(ctx, 5*time.Second); err != nil {
			fail("Tile server did not become ready", "error", err.Error())
		}
	}

	tileProvider, closeTileProvider, err := tileprovider.NewTileProviderOrMock(config, httpClient, logger)
	if err != nil {
		fail("Failed to initialize tile provider", "error", err.Error())
	}
	defer closeTileProvider()
	logger.Info("Initialized tile provider")

	grid := projection.NewDefault()

	buildingProvider, closeBuildingProvider, err := buildingprovider.NewBuildingProviderOrMock(ctx, config, grid, logger)
	if err != nil {
		fail("Failed to initialize building provider", "error", err.Error())
	}
	defer closeBuildingProvider()
	logger.Info("Initialized building provider")

	device := graphics.NewHeadless()

	queue, err := workqueue.New(constants.WORK_QUEUE_CAP)
	if err != nil {
		fail("Failed to initialize work queue", "error", err.Error())
	}

	assignments := ledger.New[domain.ChunkKey]()

	placeholder, err := app.NewPlaceholderTexture(device)
	if err != nil {
		fail("Failed to create placeholder texture", "error", err.Error())
	}
	defer placeholder.Dispose()

	tiles, err := app.NewTileCache(
		tileProvider,
		device,
		queue,
		placeholder,
		cache.DefaultOptions[domain.TileKey, *graphics.Texture](constants.MAX_TILES),
		logger,
	)
	if err != nil {
		fail("Failed to initialize tile cache", "error", err.Error())
	}

	buildings, err := app.NewBuildingCache(
		buildingProvider,
		device,
		queue,
		assignments,
		cache.DefaultOptions[domain.ChunkKey, *app.ChunkModel](constants.MAX_BUILDINGS),
		logger,
	)
	if err != nil {
		fail("Failed to initialize building cache", "error", err.Error())
	}

	world := app.NewMap(grid, tiles, buildings)
	loop := app.NewFrameLoop(world, tiles, buildings, queue, assignments, device, logger, time.Now)
	defer loop.Close(context.Background())

	ipLimiter, stopIPLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(2),
		ratelimiting.BurstSize(60),
	)
	defer stopIPLimiter()
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(ipLimiter, ratelimiting.IPKeyFunc)
	sentryMiddleware := reporting.NewSentryMiddleware()

	mux := http.NewServeMux()
	mux.HandleFunc(
		"/v1/diagnostics",
		ports.MakeGetDiagnosticsHandler(
			loop.Diagnostics,
			ipRateLimiter,
			logger.With("port", "diagnostics"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"/v1/gc",
		ports.MakeForceGCHandler(
			loop.RequestGC,
			ipRateLimiter,
			logger.With("port", "gc"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"/v1/presets",
		ports.MakeGetPresetsHandler(
			preset,
			ipRateLimiter,
			logger.With("port", "presets"),
			sentryMiddleware,
		),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.DiagnosticsPort()),
		Handler:           otelhttp.NewHandler(mux, "diagnostics"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("Diagnostics server shutdown")
			return
		}
		logger.Error("Diagnostics server error", "error", err.Error())
		stop()
	}()

	logger.Info("Init complete")
	err = run(ctx, loop, preset, app.DefaultFlyover(), logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Failed to shut down diagnostics server", "error", shutdownErr.Error())
	}

	if err != nil {
		// Flush before exiting so the emergency reaches Sentry
		flush()
		fail("Frame loop failed", "error", err.Error())
	}
	logger.Info("Shutting down")
}

// run steps the frame loop at a fixed rate until ctx is done
func run(ctx context.Context, loop *app.FrameLoop, preset domain.GraphicsPreset, flyover app.Flyover, logger *slog.Logger) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	start := time.Now()
	lastReport := start
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			result, err := loop.Step(ctx, flyover.CameraAt(now.Sub(start)), preset)
			if err != nil {
				return fmt.Errorf("frame failed: %w", err)
			}

			if now.Sub(lastReport) >= reportInterval {
				lastReport = now
				logger.InfoContext(ctx, "Frame", "diagnostics", result.Diagnostics.String())
			}
		}
	}
}
