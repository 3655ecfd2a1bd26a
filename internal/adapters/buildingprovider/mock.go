package buildingprovider

import (
	"context"
	"math"

	"github.com/Amund211/atlas/internal/domain"
)

const (
	mockSpacing = 512.0
	mockSide    = 96.0
)

type mockedBuildingProvider struct{}

// NewMock returns a provider with one square building in every 512 unit cell
func NewMock() BuildingProvider {
	return mockedBuildingProvider{}
}

func (mockedBuildingProvider) QueryInBounds(ctx context.Context, min, max domain.Vec2) ([]domain.Building, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buildings := make([]domain.Building, 0)
	for cx := int(math.Floor(min.X / mockSpacing)); float64(cx)*mockSpacing < max.X; cx++ {
		for cy := int(math.Floor(min.Y / mockSpacing)); float64(cy)*mockSpacing < max.Y; cy++ {
			origin := domain.Vec2{X: float64(cx) * mockSpacing, Y: float64(cy) * mockSpacing}
			if origin.X < min.X || origin.Y < min.Y {
				continue
			}
			buildings = append(buildings, domain.Building{
				ID: domain.BuildingID(int64(cx)<<32 | int64(uint32(cy))),
				Footprints: []domain.Polygon{{
					origin,
					{X: origin.X + mockSide, Y: origin.Y},
					{X: origin.X + mockSide, Y: origin.Y + mockSide},
					{X: origin.X, Y: origin.Y + mockSide},
				}},
				Floors: 1 + (cx*7+cy*13)&15,
			})
		}
	}
	return buildings, nil
}
