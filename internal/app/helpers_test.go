package app_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/workqueue"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type tileProviderFunc func(ctx context.Context, key domain.TileKey) ([]byte, error)

func (f tileProviderFunc) FetchTile(ctx context.Context, key domain.TileKey) ([]byte, error) {
	return f(ctx, key)
}

type buildingProviderFunc func(ctx context.Context, min, max domain.Vec2) ([]domain.Building, error)

func (f buildingProviderFunc) QueryInBounds(ctx context.Context, min, max domain.Vec2) ([]domain.Building, error) {
	return f(ctx, min, max)
}

func newQueue(t *testing.T, hardCap int) *workqueue.Queue {
	t.Helper()

	q, err := workqueue.New(hardCap)
	require.NoError(t, err)
	return q
}

// pump plays the render thread until the test ends
func pump(t *testing.T, q *workqueue.Queue) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.RunUpTo(ctx, 100)
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func square(origin domain.Vec2, side float64) domain.Polygon {
	return domain.Polygon{
		origin,
		{X: origin.X + side, Y: origin.Y},
		{X: origin.X + side, Y: origin.Y + side},
		{X: origin.X, Y: origin.Y + side},
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case value := <-ch:
		return value
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for value")
		var empty T
		return empty
	}
}
