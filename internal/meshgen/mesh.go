package meshgen

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Amund211/atlas/internal/constants"
	"github.com/Amund211/atlas/internal/domain"
)

const (
	StoreyHeight = constants.STOREY_HEIGHT
	// Taller tags are clamped
	MaxStoreys = constants.MAX_STOREYS
)

// Mesh is an indexed triangle list. Positions and normals hold three floats per vertex, UVs two.
type Mesh struct {
	Positions []float32
	Normals   []float32
	UVs       []float32
	Indices   []uint32
}

func (m *Mesh) VertexCount() int {
	return len(m.Positions) / 3
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Mesh) Empty() bool {
	return len(m.Indices) == 0
}

// SizeBytes is the size of the vertex and index buffers
func (m *Mesh) SizeBytes() int {
	return 4 * (len(m.Positions) + len(m.Normals) + len(m.UVs) + len(m.Indices))
}

// Append adds the geometry of other to m
func (m *Mesh) Append(other Mesh) {
	offset := uint32(m.VertexCount())
	m.Positions = append(m.Positions, other.Positions...)
	m.Normals = append(m.Normals, other.Normals...)
	m.UVs = append(m.UVs, other.UVs...)
	for _, index := range other.Indices {
		m.Indices = append(m.Indices, index+offset)
	}
}

func (m *Mesh) vertex(position, normal domain.Vec3, u, v float64) uint32 {
	index := uint32(m.VertexCount())
	m.Positions = append(m.Positions, float32(position.X), float32(position.Y), float32(position.Z))
	m.Normals = append(m.Normals, float32(normal.X), float32(normal.Y), float32(normal.Z))
	m.UVs = append(m.UVs, float32(u), float32(v))
	return index
}

func (m *Mesh) triangle(a, b, c uint32) {
	m.Indices = append(m.Indices, a, b, c)
}

// Height is the extrusion height for a building with the given tagged floor count.
// Untagged or broken counts are clamped to [1, MaxStoreys].
func Height(floors int) float64 {
	return float64(min(max(floors, 1), MaxStoreys)) * StoreyHeight
}

// Extrude builds a prism with a flat roof over a footprint ring. Faces point outwards.
func Extrude(ring domain.Polygon, height float64) (Mesh, error) {
	ring, triangles, err := triangulate(ring)
	if err != nil {
		return Mesh{}, err
	}

	mesh := Mesh{}
	up := domain.Vec3{X: 0, Y: 1, Z: 0}

	roof := make(map[domain.Vec2]uint32, len(ring))
	for _, p := range ring {
		roof[p] = mesh.vertex(domain.Vec3{X: p.X, Y: height, Z: p.Y}, up, p.X/StoreyHeight, p.Y/StoreyHeight)
	}
	for _, tri := range triangles {
		// Counter-clockwise on the ground plane faces down, so flip
		mesh.triangle(roof[tri[0]], roof[tri[2]], roof[tri[1]])
	}

	along := 0.0
	for i, p0 := range ring {
		p1 := ring[(i+1)%len(ring)]
		edge := p1.Sub(p0)
		length := edge.Len()
		normal := domain.Vec3{X: edge.Y, Y: 0, Z: -edge.X}.Normalize()

		u0, u1 := along/StoreyHeight, (along+length)/StoreyHeight
		top := height / StoreyHeight

		b0 := mesh.vertex(domain.Vec3{X: p0.X, Y: 0, Z: p0.Y}, normal, u0, 0)
		b1 := mesh.vertex(domain.Vec3{X: p1.X, Y: 0, Z: p1.Y}, normal, u1, 0)
		t1 := mesh.vertex(domain.Vec3{X: p1.X, Y: height, Z: p1.Y}, normal, u1, top)
		t0 := mesh.vertex(domain.Vec3{X: p0.X, Y: height, Z: p0.Y}, normal, u0, top)

		mesh.triangle(b0, t1, b1)
		mesh.triangle(b0, t0, t1)

		along += length
	}

	return mesh, nil
}

// BuildBuilding extrudes every footprint of b to its storey height
func BuildBuilding(b domain.Building) (Mesh, error) {
	if len(b.Footprints) == 0 {
		return Mesh{}, fmt.Errorf("%w: building %d has no footprint", domain.ErrInvalidGeometry, b.ID)
	}

	height := Height(b.Floors)
	mesh := Mesh{}
	var errs []error
	for _, footprint := range b.Footprints {
		part, err := Extrude(footprint, height)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		mesh.Append(part)
	}

	if mesh.Empty() {
		return Mesh{}, fmt.Errorf("building %d: %w", b.ID, errors.Join(errs...))
	}
	return mesh, nil
}

// BuildChunk merges the meshes of all buildings into one. Buildings that fail to build are skipped.
// Returns the merged mesh and the number of skipped buildings.
func BuildChunk(buildings []domain.Building, logger *slog.Logger) (Mesh, int) {
	mesh := Mesh{}
	skipped := 0
	for _, building := range buildings {
		part, err := BuildBuilding(building)
		if err != nil {
			logger.Debug("Skipping building", "id", int64(building.ID), "error", err.Error())
			skipped++
			continue
		}
		mesh.Append(part)
	}
	return mesh, skipped
}
