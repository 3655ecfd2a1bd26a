package domain

import "math"

// Plane is the set of points p where Normal·p + D == 0. Points with a positive distance are
// on the side the normal points towards.
type Plane struct {
	Normal Vec3
	D      float64
}

func newPlane(normal, point Vec3) Plane {
	n := normal.Normalize()
	return Plane{Normal: n, D: -n.Dot(point)}
}

func (p Plane) Distance(point Vec3) float64 {
	return p.Normal.Dot(point) + p.D
}

// Frustum is the view volume of a camera. All plane normals point inwards.
type Frustum struct {
	Planes [6]Plane
}

func (f Frustum) ContainsPoint(p Vec3) bool {
	for _, plane := range f.Planes {
		if plane.Distance(p) < 0 {
			return false
		}
	}
	return true
}

// ContainsBox reports whether any part of the box may be inside the frustum.
//
// NOTE: Conservative, boxes near the frustum corners can be reported as visible
func (f Frustum) ContainsBox(b BoundingBox) bool {
	for _, plane := range f.Planes {
		// The corner furthest along the plane normal
		corner := Vec3{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z}
		if plane.Normal.X >= 0 {
			corner.X = b.Max.X
		}
		if plane.Normal.Y >= 0 {
			corner.Y = b.Max.Y
		}
		if plane.Normal.Z >= 0 {
			corner.Z = b.Max.Z
		}
		if plane.Distance(corner) < 0 {
			return false
		}
	}
	return true
}

// Camera is a perspective camera in world space. Y is up.
type Camera struct {
	Position  Vec3 `json:"position"`
	Direction Vec3 `json:"direction"`
	Up        Vec3 `json:"up"`

	// Vertical field of view in degrees
	FieldOfView float64 `json:"fieldOfView"`
	Aspect      float64 `json:"aspect"`
	Near        float64 `json:"near"`
	Far         float64 `json:"far"`
}

func NewCamera(position, target Vec3, fieldOfView, aspect float64) Camera {
	return Camera{
		Position:    position,
		Direction:   target.Sub(position).Normalize(),
		Up:          Vec3{X: 0, Y: 1, Z: 0},
		FieldOfView: fieldOfView,
		Aspect:      aspect,
		Near:        1,
		Far:         30_000,
	}
}

func (c Camera) Frustum() Frustum {
	forward := c.Direction.Normalize()
	right := forward.Cross(c.Up).Normalize()
	if right.Len() == 0 {
		// Looking straight along the up vector
		right = Vec3{X: 1, Y: 0, Z: 0}
	}
	up := right.Cross(forward)

	halfV := math.Tan(c.FieldOfView * math.Pi / 360)
	halfH := halfV * c.Aspect

	leftEdge := forward.Sub(right.Scale(halfH))
	rightEdge := forward.Add(right.Scale(halfH))
	topEdge := forward.Add(up.Scale(halfV))
	bottomEdge := forward.Sub(up.Scale(halfV))

	return Frustum{Planes: [6]Plane{
		newPlane(forward, c.Position.Add(forward.Scale(c.Near))),
		newPlane(forward.Scale(-1), c.Position.Add(forward.Scale(c.Far))),
		newPlane(leftEdge.Cross(up), c.Position),
		newPlane(up.Cross(rightEdge), c.Position),
		newPlane(topEdge.Cross(right), c.Position),
		newPlane(right.Cross(bottomEdge), c.Position),
	}}
}
