package app

import (
	"math"

	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/Amund211/atlas/internal/quadtree"
)

// Smallest tile drawn, in world units
const MinTileNodeSize = 128

type (
	TileTree  = quadtree.Tree[domain.TileKey, *graphics.Texture]
	ChunkTree = quadtree.Tree[domain.ChunkKey, *ChunkModel]
)

// Map is the pair of quadtree forests covering the grid
type Map struct {
	Grid      projection.Grid
	Tiles     *TileTree
	Buildings *ChunkTree
}

func tileChildKey(parent domain.TileKey, _ domain.Vec2, _ float64, dx, dy int) domain.TileKey {
	return parent.Child(dx, dy)
}

func chunkChildKey(_ domain.ChunkKey, origin domain.Vec2, size float64, _, _ int) domain.ChunkKey {
	return domain.NewChunkKey(origin, size)
}

func NewTileTree(grid projection.Grid, tiles quadtree.ResourceCache[domain.TileKey, *graphics.Texture]) *TileTree {
	tree := quadtree.New[domain.TileKey, *graphics.Texture](tiles, tileChildKey, quadtree.Options{
		MinSize:        MinTileNodeSize,
		BBoxPadding:    constants.TILE_BBOX_PAD,
		HeightScaled:   true,
		HeightUnit:     constants.HEIGHT_LOD_UNIT,
		KeepParentBand: true,
		DrawDistance: func(preset domain.GraphicsPreset) float64 {
			return preset.TileDrawDist
		},
		LODSwitchDistance: func(preset domain.GraphicsPreset) float64 {
			return preset.LODSwitchDist
		},
	})
	for _, root := range grid.RootTiles() {
		tree.AddRoot(root.Origin, root.Size, root.Key)
	}
	return tree
}

// NewChunkTree splits every root down to CHUNK_ZOOM chunks and never draws coarser ones
func NewChunkTree(grid projection.Grid, buildings quadtree.ResourceCache[domain.ChunkKey, *ChunkModel]) *ChunkTree {
	tree := quadtree.New[domain.ChunkKey, *ChunkModel](buildings, chunkChildKey, quadtree.Options{
		MinSize:    projection.TileSize(constants.CHUNK_ZOOM),
		BBoxHeight: constants.MAX_STOREYS * constants.STOREY_HEIGHT,
		DrawDistance: func(preset domain.GraphicsPreset) float64 {
			return preset.BuildingDrawDist
		},
		LODSwitchDistance: func(domain.GraphicsPreset) float64 {
			return math.Inf(1)
		},
	})
	for _, root := range grid.ChunkRoots() {
		tree.AddRoot(root.Min, root.Size(), root)
	}
	return tree
}

func NewMap(grid projection.Grid, tiles *TileCache, buildings *BuildingCache) *Map {
	return &Map{
		Grid:      grid,
		Tiles:     NewTileTree(grid, tiles),
		Buildings: NewChunkTree(grid, buildings),
	}
}
