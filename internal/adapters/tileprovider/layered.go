package tileprovider

import (
	"context"
	"errors"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
)

type TileStore interface {
	Get(ctx context.Context, key domain.TileKey) ([]byte, error)
	Put(ctx context.Context, key domain.TileKey, data []byte) error
}

// Layered serves tiles from a store, falling back to upstream and writing what it fetches back
type Layered struct {
	store    TileStore
	upstream TileProvider
}

func NewLayered(store TileStore, upstream TileProvider) *Layered {
	return &Layered{store: store, upstream: upstream}
}

func (l *Layered) FetchTile(ctx context.Context, key domain.TileKey) ([]byte, error) {
	logger := logging.FromContext(ctx)

	data, err := l.store.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, domain.ErrTileNotFound) {
		logger.WarnContext(ctx, "Failed to read stored tile", "tile", key.String(), "error", err.Error())
	}

	data, err = l.upstream.FetchTile(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := l.store.Put(ctx, key, data); err != nil {
		logger.WarnContext(ctx, "Failed to store tile", "tile", key.String(), "error", err.Error())
	}
	return data, nil
}
