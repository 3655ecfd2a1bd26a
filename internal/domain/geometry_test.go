package domain_test

import (
	"testing"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestClosestPoint(t *testing.T) {
	t.Parallel()

	box := domain.NewGroundBox(domain.Vec2{X: 0, Y: 0}, 100, 0, 0)

	cases := []struct {
		name  string
		point domain.Vec3
		want  domain.Vec3
	}{
		{
			name:  "inside",
			point: domain.Vec3{X: 50, Y: 0, Z: 50},
			want:  domain.Vec3{X: 50, Y: 0, Z: 50},
		},
		{
			name:  "above",
			point: domain.Vec3{X: 50, Y: 300, Z: 50},
			want:  domain.Vec3{X: 50, Y: 0, Z: 50},
		},
		{
			name:  "outside corner",
			point: domain.Vec3{X: -20, Y: 10, Z: 150},
			want:  domain.Vec3{X: 0, Y: 0, Z: 100},
		},
		{
			name:  "outside edge",
			point: domain.Vec3{X: 130, Y: 0, Z: 40},
			want:  domain.Vec3{X: 100, Y: 0, Z: 40},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, box.ClosestPoint(tc.point))
		})
	}
}

func TestNewGroundBox(t *testing.T) {
	t.Parallel()

	box := domain.NewGroundBox(domain.Vec2{X: 10, Y: 20}, 100, 64, 5)
	require.Equal(t, domain.Vec3{X: -54, Y: 0, Z: -44}, box.Min)
	require.Equal(t, domain.Vec3{X: 174, Y: 5, Z: 184}, box.Max)
	require.True(t, box.Contains(box.Center()))
}

func TestFrustum(t *testing.T) {
	t.Parallel()

	// Looking north (-Z) from slightly above the ground
	cam := domain.NewCamera(
		domain.Vec3{X: 0, Y: 10, Z: 0},
		domain.Vec3{X: 0, Y: 10, Z: -100},
		67,
		16.0/9.0,
	)
	frustum := cam.Frustum()

	t.Run("points", func(t *testing.T) {
		t.Parallel()

		require.True(t, frustum.ContainsPoint(domain.Vec3{X: 0, Y: 10, Z: -50}))
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: 0, Y: 10, Z: 50}), "behind")
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: 0, Y: 10, Z: -0.5}), "before near plane")
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: 0, Y: 10, Z: -40_000}), "past far plane")
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: 500, Y: 10, Z: -50}), "far right")
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: -500, Y: 10, Z: -50}), "far left")
		require.False(t, frustum.ContainsPoint(domain.Vec3{X: 0, Y: 500, Z: -50}), "far above")
	})

	t.Run("boxes", func(t *testing.T) {
		t.Parallel()

		ahead := domain.NewGroundBox(domain.Vec2{X: -50, Y: -200}, 100, 0, 0)
		require.True(t, frustum.ContainsBox(ahead))

		behind := domain.NewGroundBox(domain.Vec2{X: -50, Y: 100}, 100, 0, 0)
		require.False(t, frustum.ContainsBox(behind))

		// Straddles the camera position
		around := domain.NewGroundBox(domain.Vec2{X: -500, Y: -500}, 1000, 0, 0)
		require.True(t, frustum.ContainsBox(around))

		toTheSide := domain.NewGroundBox(domain.Vec2{X: 5000, Y: -200}, 100, 0, 0)
		require.False(t, frustum.ContainsBox(toTheSide))
	})

	t.Run("looking straight down", func(t *testing.T) {
		t.Parallel()

		down := domain.NewCamera(
			domain.Vec3{X: 0, Y: 1000, Z: 0},
			domain.Vec3{X: 0, Y: 0, Z: 0},
			67,
			1,
		)
		f := down.Frustum()

		below := domain.NewGroundBox(domain.Vec2{X: -10, Y: -10}, 20, 0, 0)
		require.True(t, f.ContainsBox(below))

		farAway := domain.NewGroundBox(domain.Vec2{X: 10_000, Y: 10_000}, 20, 0, 0)
		require.False(t, f.ContainsBox(farAway))
	})
}

func TestTileKey(t *testing.T) {
	t.Parallel()

	key := domain.TileKey{X: 7, Y: 3, Zoom: 13}

	children := []domain.TileKey{key.Child(0, 0), key.Child(1, 0), key.Child(0, 1), key.Child(1, 1)}
	require.Equal(t, []domain.TileKey{
		{X: 14, Y: 6, Zoom: 14},
		{X: 15, Y: 6, Zoom: 14},
		{X: 14, Y: 7, Zoom: 14},
		{X: 15, Y: 7, Zoom: 14},
	}, children)

	for _, child := range children {
		require.Equal(t, key, child.Parent())
	}

	require.Equal(t, "13/7/3", key.String())
}

func TestChunkKey(t *testing.T) {
	t.Parallel()

	key := domain.NewChunkKey(domain.Vec2{X: -4096, Y: 8192}, 4096)
	require.Equal(t, domain.Vec2{X: 0, Y: 12288}, key.Max)
	require.InDelta(t, 4096, key.Size(), 1e-9)
	require.Equal(t, "chunk(-4096,8192)-(0,12288)", key.String())
}
