package domain

// OpenStreetMap ID of a building. Negative for buildings mapped as relations.
type BuildingID int64

// Polygon is a closed ring of points on the ground plane. The closing point is not repeated.
type Polygon []Vec2

// Building is an OpenStreetMap building footprint in world coordinates
type Building struct {
	ID         BuildingID
	Footprints []Polygon
	// Number of floors as tagged. 0 when untagged.
	Floors int
}
