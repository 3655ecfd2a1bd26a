package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Amund211/atlas/internal/adapters/tileprovider"
	"github.com/Amund211/atlas/internal/app"
	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/Amund211/atlas/internal/ratelimiting"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
)

type PrefetchCmd struct {
	ZoomMin int    `default:"13" help:"Lowest zoom level to fetch."`
	ZoomMax int    `default:"17" help:"Highest zoom level to fetch."`
	Workers int    `default:"8" help:"Concurrent tile requests."`
	MBTiles string `name:"mbtiles" help:"MBTiles file to fill. Defaults to MBTILES_PATH." type:"path"`
}

func (c *PrefetchCmd) Run(rctx *runContext) error {
	if c.ZoomMin < constants.MIN_ZOOM || c.ZoomMax > constants.MAX_ZOOM {
		return fmt.Errorf("zoom levels must be within %d-%d", constants.MIN_ZOOM, constants.MAX_ZOOM)
	}

	path := c.MBTiles
	if path == "" {
		path = rctx.conf.MBTilesPath()
	}
	if path == "" {
		return fmt.Errorf("no MBTiles file given and MBTILES_PATH is not set")
	}

	store, err := tileprovider.OpenMBTiles(path)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, stopLimiter := ratelimiting.NewTokenBucketRateLimiter(ratelimiting.RefillPerSecond(c.Workers*25), ratelimiting.BurstSize(c.Workers*10))
	defer stopLimiter()

	upstream, stopCooldowns, err := tileprovider.NewHTTP(
		&http.Client{Timeout: 30 * time.Second},
		rctx.conf.TileServerURL(),
		limiter,
		otel.Meter("atlas/atlasctl"),
		time.Now,
	)
	if err != nil {
		return err
	}
	defer stopCooldowns()

	grid := projection.NewDefault()
	if err := store.SetBounds(rctx.ctx, grid, c.ZoomMin, c.ZoomMax); err != nil {
		return err
	}

	start := time.Now()
	result, err := app.PrefetchTiles(rctx.ctx, grid, c.ZoomMin, c.ZoomMax, upstream, store, c.Workers, func(progress app.PrefetchResult) {
		rctx.logger.Info("Prefetching", "fetched", humanize.Comma(progress.Fetched), "failed", progress.Failed)
	})
	if err != nil {
		return err
	}

	count, err := store.Count(rctx.ctx)
	if err != nil {
		return err
	}

	fmt.Printf(
		"fetched %s, skipped %s, missing %s, failed %s in %s. %s now holds %s tiles\n",
		humanize.Comma(result.Fetched),
		humanize.Comma(result.Skipped),
		humanize.Comma(result.Missing),
		humanize.Comma(result.Failed),
		time.Since(start).Round(time.Second),
		path,
		humanize.Comma(int64(count)),
	)
	return nil
}
