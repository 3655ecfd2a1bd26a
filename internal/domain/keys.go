package domain

import "fmt"

// TileKey addresses one slippy map tile
type TileKey struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Zoom int `json:"zoom"`
}

// Child returns the key of the child tile in quadrant (dx, dy), each 0 or 1
func (k TileKey) Child(dx, dy int) TileKey {
	return TileKey{X: 2*k.X + dx, Y: 2*k.Y + dy, Zoom: k.Zoom + 1}
}

func (k TileKey) Parent() TileKey {
	return TileKey{X: k.X / 2, Y: k.Y / 2, Zoom: k.Zoom - 1}
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// ChunkKey addresses a square building chunk by its corners on the ground plane
type ChunkKey struct {
	Min Vec2 `json:"min"`
	Max Vec2 `json:"max"`
}

func NewChunkKey(origin Vec2, size float64) ChunkKey {
	return ChunkKey{Min: origin, Max: Vec2{X: origin.X + size, Y: origin.Y + size}}
}

func (k ChunkKey) Size() float64 {
	return k.Max.X - k.Min.X
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("chunk(%.0f,%.0f)-(%.0f,%.0f)", k.Min.X, k.Min.Y, k.Max.X, k.Max.Y)
}
