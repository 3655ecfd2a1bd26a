package tileprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/ratelimiting"
	"github.com/Amund211/atlas/internal/reporting"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestTimeout = 10 * time.Second
	hostCooldown   = 30 * time.Second
	// Rendered tiles are well below this
	maxTileBytes = 4 << 20
)

// HTTP fetches tiles from a slippy map server
type HTTP struct {
	httpClient  HttpClient
	urlTemplate string
	host        string
	limiter     ratelimiting.RateLimiter
	nowFunc     func() time.Time

	// Hosts that recently failed, with the status that caused it. 0 for transport errors.
	cooldowns *ttlcache.Cache[string, int]

	metrics tileMetricsCollection
	tracer  trace.Tracer
}

func NewHTTP(
	httpClient HttpClient,
	urlTemplate string,
	limiter ratelimiting.RateLimiter,
	meter metric.Meter,
	nowFunc func() time.Time,
) (*HTTP, func(), error) {
	parsed, err := url.Parse(urlTemplate)
	if err != nil || parsed.Host == "" {
		return nil, nil, fmt.Errorf("invalid tile url template %q", urlTemplate)
	}

	metrics, err := setupTileMetrics(meter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up tile metrics: %w", err)
	}

	cooldowns := ttlcache.New[string, int](
		ttlcache.WithTTL[string, int](hostCooldown),
		ttlcache.WithDisableTouchOnHit[string, int](),
	)
	go cooldowns.Start()

	return &HTTP{
		httpClient:  httpClient,
		urlTemplate: urlTemplate,
		host:        parsed.Host,
		limiter:     limiter,
		nowFunc:     nowFunc,

		cooldowns: cooldowns,

		metrics: metrics,
		tracer:  otel.Tracer("atlas/tileprovider/http"),
	}, cooldowns.Stop, nil
}

func (p *HTTP) tileURL(key domain.TileKey) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(key.Zoom),
		"{x}", strconv.Itoa(key.X),
		"{y}", strconv.Itoa(key.Y),
	).Replace(p.urlTemplate)
}

func (p *HTTP) cooldown(ctx context.Context, status int) {
	p.cooldowns.Set(p.host, status, ttlcache.DefaultTTL)
	p.metrics.cooldowns.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", status)))
}

func (p *HTTP) FetchTile(ctx context.Context, key domain.TileKey) ([]byte, error) {
	ctx, span := p.tracer.Start(ctx, "HTTP.FetchTile", trace.WithAttributes(attribute.String("tile", key.String())))
	defer span.End()

	logger := logging.FromContext(ctx)

	if item := p.cooldowns.Get(p.host); item != nil {
		return nil, fmt.Errorf("%w: tile host cooling down after status %d", domain.ErrTemporarilyUnavailable, item.Value())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tileURL(key), nil)
	if err != nil {
		err := fmt.Errorf("failed to create request for tile %s: %w", key, err)
		reporting.Report(ctx, err)
		return nil, err
	}
	req.Header.Set("User-Agent", constants.USER_AGENT)

	if err := p.limiter.Wait(ctx, ratelimiting.HostKeyFunc(req)); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTemporarilyUnavailable, err)
	}

	// The timeout covers the request only, not the wait for the limiter
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req = req.WithContext(ctx)

	start := p.nowFunc()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.cooldown(ctx, 0)
		p.metrics.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		logger.WarnContext(ctx, "Tile request failed", "tile", key.String(), "error", err.Error())
		return nil, fmt.Errorf("%w: failed to send request for tile %s: %w", domain.ErrTemporarilyUnavailable, key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	duration := p.nowFunc().Sub(start)

	p.metrics.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", strconv.Itoa(resp.StatusCode))))
	p.metrics.requestDuration.Record(ctx, duration.Seconds())
	span.SetAttributes(attribute.Int("status", resp.StatusCode))

	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body for tile %s: %w", domain.ErrTemporarilyUnavailable, key, err)
	}

	logger.DebugContext(ctx, "Tile request completed", "tile", key.String(), "status", resp.StatusCode, "duration", duration.String())

	switch resp.StatusCode {
	case http.StatusOK:
		return data, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: tile %s", domain.ErrTileNotFound, key)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		p.cooldown(ctx, resp.StatusCode)
		return nil, fmt.Errorf("%w: tile server returned %d for tile %s", domain.ErrTemporarilyUnavailable, resp.StatusCode, key)
	default:
		err := fmt.Errorf("unexpected status %d for tile %s", resp.StatusCode, key)
		reporting.Report(ctx, err, map[string]string{
			"status": strconv.Itoa(resp.StatusCode),
		})
		return nil, err
	}
}
