package buildingprovider

import (
	"fmt"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/paulmach/orb"
)

// toBuilding converts a WGS84 footprint to world coordinates. Only outer rings are kept.
func toBuilding(grid projection.Grid, id domain.BuildingID, geometry orb.Geometry, floors int) (domain.Building, error) {
	var polygons []orb.Polygon
	switch g := geometry.(type) {
	case orb.Polygon:
		polygons = []orb.Polygon{g}
	case orb.MultiPolygon:
		polygons = g
	default:
		return domain.Building{}, fmt.Errorf("%w: building %d has geometry type %T", domain.ErrInvalidGeometry, id, geometry)
	}

	footprints := make([]domain.Polygon, 0, len(polygons))
	for _, polygon := range polygons {
		if len(polygon) == 0 {
			continue
		}
		outer := polygon[0]
		footprint := make(domain.Polygon, 0, len(outer))
		for _, point := range outer {
			footprint = append(footprint, grid.LonLatToWorld(point))
		}
		footprints = append(footprints, footprint)
	}

	if len(footprints) == 0 {
		return domain.Building{}, fmt.Errorf("%w: building %d has no rings", domain.ErrInvalidGeometry, id)
	}

	return domain.Building{ID: id, Footprints: footprints, Floors: floors}, nil
}
