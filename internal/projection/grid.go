package projection

import (
	"math"

	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Number of MIN_ZOOM tiles in the map
const (
	RootColumns = 20
	RootRows    = 36
)

// NorthWest is a point inside the north west root tile of the Brisbane map
var NorthWest = orb.Point{152.58018493652344, -26.80936358805377}

// TileSize is the side length in world units of a tile at zoom
func TileSize(zoom int) float64 {
	return math.Ldexp(constants.MIN_TILE_SIZE, constants.TOTAL_MAX_ZOOM-zoom)
}

// Grid maps between the world plane, WGS84 and the slippy tile pyramid.
//
// The world plane is centred on the map. X grows eastwards and Y southwards, following the tile rows.
type Grid struct {
	northWest maptile.Tile
	// Tile whose north west corner is the world origin
	origin maptile.Tile
}

func New(northWest orb.Point) Grid {
	nw := maptile.At(northWest, constants.MIN_ZOOM)
	return Grid{
		northWest: nw,
		origin:    maptile.New(nw.X+RootColumns/2, nw.Y+RootRows/2, constants.MIN_ZOOM),
	}
}

func NewDefault() Grid {
	return New(NorthWest)
}

// Root is a top level quadtree node
type Root struct {
	Origin domain.Vec2
	Size   float64
	Key    domain.TileKey
}

func (g Grid) rootSize() float64 {
	return TileSize(constants.MIN_ZOOM)
}

// RootTiles returns the MIN_ZOOM tiles making up the map, column by column
func (g Grid) RootTiles() []Root {
	size := g.rootSize()
	roots := make([]Root, 0, RootColumns*RootRows)
	for i := -RootColumns / 2; i < RootColumns/2; i++ {
		for j := -RootRows / 2; j < RootRows/2; j++ {
			roots = append(roots, Root{
				Origin: domain.Vec2{X: float64(i) * size, Y: float64(j) * size},
				Size:   size,
				Key: domain.TileKey{
					X:    int(g.origin.X) + i,
					Y:    int(g.origin.Y) + j,
					Zoom: constants.MIN_ZOOM,
				},
			})
		}
	}
	return roots
}

// ChunkRoots returns one building chunk per root tile
func (g Grid) ChunkRoots() []domain.ChunkKey {
	roots := g.RootTiles()
	chunks := make([]domain.ChunkKey, 0, len(roots))
	for _, root := range roots {
		chunks = append(chunks, domain.NewChunkKey(root.Origin, root.Size))
	}
	return chunks
}

// Bounds returns the north west and south east corners of the map
func (g Grid) Bounds() (domain.Vec2, domain.Vec2) {
	size := g.rootSize()
	return domain.Vec2{X: -RootColumns / 2 * size, Y: -RootRows / 2 * size},
		domain.Vec2{X: RootColumns / 2 * size, Y: RootRows / 2 * size}
}

func (g Grid) Contains(p domain.Vec2) bool {
	nw, se := g.Bounds()
	return p.X >= nw.X && p.X < se.X && p.Y >= nw.Y && p.Y < se.Y
}

// WorldToLonLat converts a point on the world plane to WGS84 longitude and latitude
func (g Grid) WorldToLonLat(p domain.Vec2) orb.Point {
	n := math.Ldexp(1, constants.MIN_ZOOM)
	fx := float64(g.origin.X) + p.X/g.rootSize()
	fy := float64(g.origin.Y) + p.Y/g.rootSize()

	lon := fx/n*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*fy/n))) * 180 / math.Pi
	return orb.Point{lon, lat}
}

// LonLatToWorld converts WGS84 longitude and latitude to the world plane
func (g Grid) LonLatToWorld(ll orb.Point) domain.Vec2 {
	f := maptile.Fraction(ll, constants.MIN_ZOOM)
	return domain.Vec2{
		X: (f[0] - float64(g.origin.X)) * g.rootSize(),
		Y: (f[1] - float64(g.origin.Y)) * g.rootSize(),
	}
}

// LonLatBound returns the WGS84 bounds of the rectangle spanned by two world points
func (g Grid) LonLatBound(a, b domain.Vec2) orb.Bound {
	return orb.MultiPoint{g.WorldToLonLat(a), g.WorldToLonLat(b)}.Bound()
}

// TileOrigin returns the world position of the north west corner of a tile
func (g Grid) TileOrigin(key domain.TileKey) domain.Vec2 {
	scale := math.Ldexp(1, key.Zoom-constants.MIN_ZOOM)
	size := TileSize(key.Zoom)
	return domain.Vec2{
		X: (float64(key.X) - float64(g.origin.X)*scale) * size,
		Y: (float64(key.Y) - float64(g.origin.Y)*scale) * size,
	}
}

// TilesAtZoom returns every tile covering the map at zoom, row by row
func (g Grid) TilesAtZoom(zoom int) []domain.TileKey {
	if zoom < constants.MIN_ZOOM {
		return nil
	}
	scale := 1 << (zoom - constants.MIN_ZOOM)
	x0, y0 := int(g.northWest.X)*scale, int(g.northWest.Y)*scale

	keys := make([]domain.TileKey, 0, RootColumns*RootRows*scale*scale)
	for y := y0; y < y0+RootRows*scale; y++ {
		for x := x0; x < x0+RootColumns*scale; x++ {
			keys = append(keys, domain.TileKey{X: x, Y: y, Zoom: zoom})
		}
	}
	return keys
}

// Tile converts a key to the orb representation
func Tile(key domain.TileKey) maptile.Tile {
	return maptile.New(uint32(key.X), uint32(key.Y), maptile.Zoom(key.Zoom))
}
