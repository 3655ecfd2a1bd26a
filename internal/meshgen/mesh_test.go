package meshgen_test

import (
	"log/slog"
	"testing"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/meshgen"
	"github.com/stretchr/testify/require"
)

func TestHeight(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 12.9, meshgen.Height(0), 1e-9)
	require.InDelta(t, 12.9, meshgen.Height(-3), 1e-9)
	require.InDelta(t, 3*12.9, meshgen.Height(3), 1e-9)
	require.InDelta(t, 90*12.9, meshgen.Height(90), 1e-9)
	require.InDelta(t, 90*12.9, meshgen.Height(400), 1e-9)
}

func TestExtrude(t *testing.T) {
	t.Parallel()

	mesh, err := meshgen.Extrude(square(10), 25.8)
	require.NoError(t, err)

	// 4 roof vertices and 4 per wall
	require.Equal(t, 20, mesh.VertexCount())
	// 2 roof triangles and 2 per wall
	require.Equal(t, 10, mesh.TriangleCount())
	require.Len(t, mesh.Normals, 3*mesh.VertexCount())
	require.Len(t, mesh.UVs, 2*mesh.VertexCount())
	require.Equal(t, 4*(60+60+40+30), mesh.SizeBytes())

	maxY := float32(0)
	for i := 1; i < len(mesh.Positions); i += 3 {
		maxY = max(maxY, mesh.Positions[i])
	}
	require.InDelta(t, 25.8, maxY, 1e-5)

	vertex := func(i uint32) domain.Vec3 {
		return domain.Vec3{
			X: float64(mesh.Positions[3*i]),
			Y: float64(mesh.Positions[3*i+1]),
			Z: float64(mesh.Positions[3*i+2]),
		}
	}
	normal := func(i uint32) domain.Vec3 {
		return domain.Vec3{
			X: float64(mesh.Normals[3*i]),
			Y: float64(mesh.Normals[3*i+1]),
			Z: float64(mesh.Normals[3*i+2]),
		}
	}

	// Winding agrees with the stored normals, and walls face away from the centre
	centre := domain.Vec3{X: 5, Y: 12.9, Z: 5}
	for i := 0; i < len(mesh.Indices); i += 3 {
		a, b, c := mesh.Indices[i], mesh.Indices[i+1], mesh.Indices[i+2]
		face := vertex(b).Sub(vertex(a)).Cross(vertex(c).Sub(vertex(a)))
		require.Positive(t, face.Dot(normal(a)), "triangle %d", i/3)

		if normal(a).Y == 0 {
			require.Positive(t, vertex(a).Sub(centre).Dot(normal(a)), "wall %d faces outwards", i/3)
		}
	}
}

func TestMeshAppend(t *testing.T) {
	t.Parallel()

	first, err := meshgen.Extrude(square(10), 10)
	require.NoError(t, err)
	second, err := meshgen.Extrude(square(5), 10)
	require.NoError(t, err)

	merged := meshgen.Mesh{}
	merged.Append(first)
	merged.Append(second)

	require.Equal(t, first.VertexCount()+second.VertexCount(), merged.VertexCount())
	require.Equal(t, first.TriangleCount()+second.TriangleCount(), merged.TriangleCount())
	require.Equal(t, second.Indices[0]+uint32(first.VertexCount()), merged.Indices[len(first.Indices)])
	for _, index := range merged.Indices {
		require.Less(t, int(index), merged.VertexCount())
	}
}

func TestBuildBuilding(t *testing.T) {
	t.Parallel()

	t.Run("multipolygon", func(t *testing.T) {
		t.Parallel()

		mesh, err := meshgen.BuildBuilding(domain.Building{
			ID:         1,
			Footprints: []domain.Polygon{square(10), {{X: 20, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 10}}},
			Floors:     2,
		})
		require.NoError(t, err)
		require.Equal(t, 20+15, mesh.VertexCount())
	})

	t.Run("broken parts are skipped", func(t *testing.T) {
		t.Parallel()

		mesh, err := meshgen.BuildBuilding(domain.Building{
			ID:         2,
			Footprints: []domain.Polygon{square(10), {{X: 0, Y: 0}}},
		})
		require.NoError(t, err)
		require.Equal(t, 20, mesh.VertexCount())
	})

	t.Run("no usable footprint", func(t *testing.T) {
		t.Parallel()

		_, err := meshgen.BuildBuilding(domain.Building{ID: 3})
		require.ErrorIs(t, err, domain.ErrInvalidGeometry)

		_, err = meshgen.BuildBuilding(domain.Building{ID: 4, Footprints: []domain.Polygon{{{X: 0, Y: 0}}}})
		require.ErrorIs(t, err, domain.ErrInvalidGeometry)
	})
}

func TestBuildChunk(t *testing.T) {
	t.Parallel()

	buildings := []domain.Building{
		{ID: 1, Footprints: []domain.Polygon{square(10)}, Floors: 1},
		{ID: 2, Footprints: []domain.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}}}},
		{ID: 3, Footprints: []domain.Polygon{square(20)}, Floors: 4},
	}

	mesh, skipped := meshgen.BuildChunk(buildings, slog.New(slog.DiscardHandler))
	require.Equal(t, 1, skipped)
	require.Equal(t, 40, mesh.VertexCount())

	empty, skipped := meshgen.BuildChunk(nil, slog.New(slog.DiscardHandler))
	require.Zero(t, skipped)
	require.True(t, empty.Empty())
}
