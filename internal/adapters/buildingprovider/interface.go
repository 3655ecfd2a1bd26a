package buildingprovider

import (
	"context"

	"github.com/Amund211/atlas/internal/domain"
)

type BuildingProvider interface {
	// QueryInBounds returns the buildings whose footprints intersect the world rectangle [min, max]
	QueryInBounds(ctx context.Context, min, max domain.Vec2) ([]domain.Building, error)
}
