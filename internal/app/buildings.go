package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Amund211/atlas/internal/adapters/buildingprovider"
	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/cache"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/ledger"
	"github.com/Amund211/atlas/internal/meshgen"
	"github.com/Amund211/atlas/internal/workqueue"
	"github.com/hashicorp/go-set/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChunkModel is the merged building geometry of one chunk
type ChunkModel struct {
	// nil when the chunk owns no drawable buildings
	Model *graphics.Model

	Buildings int
	Skipped   int
}

func (m *ChunkModel) Dispose() {
	if m == nil || m.Model == nil {
		return
	}
	m.Model.Dispose()
}

type BuildingCache = cache.AsyncCache[domain.ChunkKey, *ChunkModel]

type buildingConstructor struct {
	provider buildingprovider.BuildingProvider
	device   graphics.Device
	queue    *workqueue.Queue
	ledger   *ledger.Ledger[domain.ChunkKey]
	build    func(buildings []domain.Building, logger *slog.Logger) (meshgen.Mesh, int)
	logger   *slog.Logger
	tracer   trace.Tracer
}

func (c *buildingConstructor) Construct(ctx context.Context, key domain.ChunkKey) (model *ChunkModel, err error) {
	ctx, span := c.tracer.Start(ctx, "buildingConstructor.Construct")
	defer span.End()
	span.SetAttributes(attribute.String("chunk", key.String()))

	buildings, err := c.provider.QueryInBounds(ctx, key.Min, key.Max)
	if err != nil {
		// NOTE: BuildingProvider implementations handle their own error reporting
		return nil, fmt.Errorf("failed to query buildings in %s: %w", key, err)
	}

	// Buildings crossing chunk borders are returned for every chunk they touch, only the first claim keeps them
	claimed := c.ledger.Claim(key, lo.Map(buildings, func(b domain.Building, _ int) domain.BuildingID {
		return b.ID
	}))
	// The chunk only reaches the cache, and releases its claim on eviction, if the construct succeeds
	defer func() {
		if r := recover(); r != nil {
			c.ledger.Release(key)
			panic(r)
		}
		if err != nil {
			c.ledger.Release(key)
		}
	}()

	owned := set.From(claimed)
	buildings = lo.Filter(buildings, func(b domain.Building, _ int) bool {
		return owned.Contains(b.ID)
	})
	span.SetAttributes(attribute.Int("buildings", len(buildings)))

	mesh, skipped := c.build(buildings, c.logger)
	model = &ChunkModel{
		Buildings: len(buildings) - skipped,
		Skipped:   skipped,
	}
	if mesh.Empty() {
		return model, nil
	}

	uploaded, err := workqueue.Call(ctx, c.queue, func() (*graphics.Model, error) {
		return c.device.NewModel(mesh)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload chunk %s: %w", key, err)
	}
	model.Model = uploaded

	return model, nil
}

// NewBuildingCache returns the cache of building chunk models. Each chunk claims its buildings in l when it
// is built and gives them up when it is evicted.
func NewBuildingCache(
	provider buildingprovider.BuildingProvider,
	device graphics.Device,
	queue *workqueue.Queue,
	l *ledger.Ledger[domain.ChunkKey],
	opts cache.Options[domain.ChunkKey, *ChunkModel],
	logger *slog.Logger,
) (*BuildingCache, error) {
	constructor := &buildingConstructor{
		provider: provider,
		device:   device,
		queue:    queue,
		ledger:   l,
		build:    meshgen.BuildChunk,
		logger:   logger.With(slog.String("component", "buildings")),
		tracer:   otel.Tracer("atlas/app/buildings"),
	}

	onEvict := opts.OnEvict
	opts.OnEvict = func(key domain.ChunkKey, value *ChunkModel) {
		l.Release(key)
		if onEvict != nil {
			onEvict(key, value)
		}
	}

	buildings, err := cache.New("buildings", cache.Constructor[domain.ChunkKey, *ChunkModel](constructor), opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create building cache: %w", err)
	}
	return buildings, nil
}
