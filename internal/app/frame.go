package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/ledger"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/quadtree"
	"github.com/Amund211/atlas/internal/reporting"
	"github.com/Amund211/atlas/internal/workqueue"
)

// A cache holding this many times its capacity is producing faster than it can collect
const AbsoluteMaxFactor = 2

type (
	TileDrawable     = quadtree.Drawable[domain.TileKey, *graphics.Texture]
	BuildingDrawable = quadtree.Drawable[domain.ChunkKey, *ChunkModel]
)

type FrameResult struct {
	Tiles       []TileDrawable
	Buildings   []BuildingDrawable
	Diagnostics Diagnostics
}

type deviceStats interface {
	Stats() graphics.Stats
}

// FrameLoop drives the caches and quadtrees once per rendered frame. Step and Close must be called from
// the render thread.
type FrameLoop struct {
	world     *Map
	tiles     *TileCache
	buildings *BuildingCache
	queue     *workqueue.Queue
	ledger    *ledger.Ledger[domain.ChunkKey]
	device    graphics.Device
	logger    *slog.Logger
	nowFunc   func() time.Time

	frame       uint64
	diagnostics atomic.Pointer[Diagnostics]
}

func NewFrameLoop(
	world *Map,
	tiles *TileCache,
	buildings *BuildingCache,
	queue *workqueue.Queue,
	l *ledger.Ledger[domain.ChunkKey],
	device graphics.Device,
	logger *slog.Logger,
	nowFunc func() time.Time,
) *FrameLoop {
	return &FrameLoop{
		world:     world,
		tiles:     tiles,
		buildings: buildings,
		queue:     queue,
		ledger:    l,
		device:    device,
		logger:    logger.With(slog.String("component", "frameloop")),
		nowFunc:   nowFunc,
	}
}

func (f *FrameLoop) Map() *Map {
	return f.world
}

// Step runs the queued uploads, walks both quadtrees and collects garbage.
//
// Returns an error wrapping domain.ErrResourceExhausted after tearing down the caches if the work queue or
// a cache has grown past its hard limit.
func (f *FrameLoop) Step(ctx context.Context, camera domain.Camera, preset domain.GraphicsPreset) (FrameResult, error) {
	f.frame++
	ctx = reporting.SetFrameInContext(ctx, f.frame)
	ctx = logging.AddMetaToContext(ctx, slog.Uint64("frame", f.frame))

	if f.queue.Exhausted() {
		length := f.queue.Len()
		tileStats, buildingStats := f.tiles.Stats(), f.buildings.Stats()

		dropped := f.queue.Drop(ctx)
		f.tiles.Purge()
		f.buildings.Purge()

		err := fmt.Errorf("%w: work queue reached %d items (hard cap %d)", domain.ErrResourceExhausted, length, f.queue.HardCap())
		f.logger.ErrorContext(ctx, "Work queue emergency", "dropped", dropped, "tiles", tileStats.String(), "buildings", buildingStats.String())
		reporting.Report(ctx, err, map[string]string{
			"tiles":     tileStats.String(),
			"buildings": buildingStats.String(),
		})
		return FrameResult{}, err
	}

	workDone := f.queue.RunUpTo(ctx, preset.WorkPerFrame)

	visibleTiles := f.world.Tiles.CollectVisible(camera, preset)
	tiles := f.world.Tiles.Drawables(visibleTiles)

	visibleChunks := f.world.Buildings.CollectVisible(camera, preset)
	buildings := f.world.Buildings.Drawables(visibleChunks)

	if err := checkAbsoluteMax(ctx, f.tiles, f.logger); err != nil {
		return FrameResult{}, err
	}
	if err := checkAbsoluteMax(ctx, f.buildings, f.logger); err != nil {
		return FrameResult{}, err
	}

	f.tiles.NextFrame()
	f.buildings.NextFrame()

	diagnostics := Diagnostics{
		Frame:            f.frame,
		Preset:           preset.Name,
		Camera:           camera.Position,
		Tiles:            f.tiles.Stats(),
		Buildings:        f.buildings.Stats(),
		TilesVisible:     len(visibleTiles),
		TilesOnScreen:    len(tiles),
		ChunksVisible:    len(visibleChunks),
		ChunksOnScreen:   len(buildings),
		TileNodes:        f.world.Tiles.NodeCount(),
		ChunkNodes:       f.world.Buildings.NodeCount(),
		WorkDone:         workDone,
		WorkLeft:         f.queue.Len(),
		ClaimedBuildings: f.ledger.ClaimedCount(),
		Time:             f.nowFunc(),
	}
	if d, ok := f.device.(deviceStats); ok {
		stats := d.Stats()
		diagnostics.Device = &stats
	}
	f.diagnostics.Store(&diagnostics)

	return FrameResult{
		Tiles:       tiles,
		Buildings:   buildings,
		Diagnostics: diagnostics,
	}, nil
}

type purgeable interface {
	Name() string
	Size() int
	MaxItems() int
	Purge() int
}

func checkAbsoluteMax(ctx context.Context, c purgeable, logger *slog.Logger) error {
	size, limit := c.Size(), AbsoluteMaxFactor*c.MaxItems()
	if size <= limit {
		return nil
	}

	evicted := c.Purge()
	err := fmt.Errorf("%w: %s cache holds %d items (absolute max %d)", domain.ErrResourceExhausted, c.Name(), size, limit)
	logger.ErrorContext(ctx, "Cache emergency", "cache", c.Name(), "size", size, "evicted", evicted)
	reporting.Report(ctx, err, map[string]string{
		"cache": c.Name(),
		"size":  fmt.Sprint(size),
	})
	return err
}

// GetDiagnostics returns the latest frame snapshot, or false if no frame has completed
type GetDiagnostics func() (Diagnostics, bool)

// RequestGC makes the next frame evict everything not in view. Safe to call from any goroutine.
func (f *FrameLoop) RequestGC() {
	f.tiles.GCNextFrame()
	f.buildings.GCNextFrame()
}

// Diagnostics returns the snapshot of the most recent successful frame. Safe to call from any goroutine.
func (f *FrameLoop) Diagnostics() (Diagnostics, bool) {
	d := f.diagnostics.Load()
	if d == nil {
		return Diagnostics{}, false
	}
	return *d, true
}

// Close fails every pending upload, stops the cache workers and disposes everything the caches hold
func (f *FrameLoop) Close(ctx context.Context) {
	dropped := f.queue.Close(ctx)
	f.tiles.Close()
	f.buildings.Close()
	f.logger.InfoContext(ctx, "Closed frame loop", "frames", f.frame, "droppedWork", dropped)
}
