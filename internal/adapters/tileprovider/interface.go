package tileprovider

import (
	"context"
	"net/http"

	"github.com/Amund211/atlas/internal/domain"
)

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TileProvider fetches encoded tile images.
//
// Errors wrapping domain.ErrTemporarilyUnavailable are worth retrying later. domain.ErrTileNotFound is not.
type TileProvider interface {
	FetchTile(ctx context.Context, key domain.TileKey) ([]byte, error)
}
