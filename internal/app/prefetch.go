package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Amund211/atlas/internal/adapters/tileprovider"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/projection"
	"golang.org/x/sync/errgroup"
)

const DefaultPrefetchWorkers = 8

type PrefetchResult struct {
	Fetched int64 `json:"fetched"`
	// Already in the store
	Skipped int64 `json:"skipped"`
	// Not served by the tile server
	Missing int64 `json:"missing"`
	Failed  int64 `json:"failed"`
}

// PrefetchTiles copies every tile of the map between minZoom and maxZoom from upstream into store.
//
// Missing and failing tiles are counted and skipped. Other errors from store abort the prefetch.
func PrefetchTiles(
	ctx context.Context,
	grid projection.Grid,
	minZoom, maxZoom int,
	upstream tileprovider.TileProvider,
	store tileprovider.TileStore,
	workers int,
	progress func(PrefetchResult),
) (PrefetchResult, error) {
	logger := logging.FromContext(ctx)

	if minZoom > maxZoom {
		return PrefetchResult{}, fmt.Errorf("invalid zoom range %d-%d", minZoom, maxZoom)
	}
	if workers <= 0 {
		workers = DefaultPrefetchWorkers
	}

	var fetched, skipped, missing, failed atomic.Int64
	snapshot := func() PrefetchResult {
		return PrefetchResult{
			Fetched: fetched.Load(),
			Skipped: skipped.Load(),
			Missing: missing.Load(),
			Failed:  failed.Load(),
		}
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for zoom := minZoom; zoom <= maxZoom; zoom++ {
		for _, key := range grid.TilesAtZoom(zoom) {
			if groupCtx.Err() != nil {
				break
			}

			g.Go(func() error {
				_, err := store.Get(groupCtx, key)
				if err == nil {
					skipped.Add(1)
					return nil
				}
				if !errors.Is(err, domain.ErrTileNotFound) {
					return fmt.Errorf("failed to read tile %s from store: %w", key, err)
				}

				data, err := upstream.FetchTile(groupCtx, key)
				switch {
				case errors.Is(err, domain.ErrTileNotFound):
					missing.Add(1)
					return nil
				case err != nil:
					if groupCtx.Err() != nil {
						return groupCtx.Err()
					}
					logger.WarnContext(groupCtx, "Failed to prefetch tile", "tile", key.String(), "error", err.Error())
					failed.Add(1)
					return nil
				}

				if err := store.Put(groupCtx, key, data); err != nil {
					return fmt.Errorf("failed to store tile %s: %w", key, err)
				}

				if n := fetched.Add(1); progress != nil && n%1000 == 0 {
					progress(snapshot())
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return snapshot(), err
	}
	if err := ctx.Err(); err != nil {
		return snapshot(), err
	}
	return snapshot(), nil
}
