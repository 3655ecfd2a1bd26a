package meshgen

import (
	"fmt"
	"math"

	"github.com/Amund211/atlas/internal/domain"
)

// MaxVertices is the largest footprint ring that is built. Larger rings are almost always broken data.
const MaxVertices = 1024

const epsilon = 1e-9

type Triangle [3]domain.Vec2

func (t Triangle) Area() float64 {
	return math.Abs(t[1].Sub(t[0]).Cross(t[2].Sub(t[0]))) / 2
}

// SignedArea is positive for counter-clockwise rings
func SignedArea(ring domain.Polygon) float64 {
	area := 0.0
	for i := range ring {
		area += ring[i].Cross(ring[(i+1)%len(ring)])
	}
	return area / 2
}

// normalizeRing drops the closing point and repeated points and orders the ring counter-clockwise
func normalizeRing(ring domain.Polygon) (domain.Polygon, error) {
	cleaned := make(domain.Polygon, 0, len(ring))
	for _, p := range ring {
		if len(cleaned) > 0 && cleaned[len(cleaned)-1] == p {
			continue
		}
		cleaned = append(cleaned, p)
	}
	for len(cleaned) > 1 && cleaned[0] == cleaned[len(cleaned)-1] {
		cleaned = cleaned[:len(cleaned)-1]
	}

	if len(cleaned) < 3 {
		return nil, fmt.Errorf("%w: ring has %d distinct vertices", domain.ErrInvalidGeometry, len(cleaned))
	}
	if len(cleaned) > MaxVertices {
		return nil, fmt.Errorf("%w: ring has %d vertices (max %d)", domain.ErrInvalidGeometry, len(cleaned), MaxVertices)
	}

	area := SignedArea(cleaned)
	if math.Abs(area) < epsilon {
		return nil, fmt.Errorf("%w: ring has no area", domain.ErrInvalidGeometry)
	}
	if area < 0 {
		for i, j := 0, len(cleaned)-1; i < j; i, j = i+1, j-1 {
			cleaned[i], cleaned[j] = cleaned[j], cleaned[i]
		}
	}
	return cleaned, nil
}

// Triangulate splits a simple polygon into triangles by ear clipping.
// The triangles are counter-clockwise regardless of the orientation of ring.
func Triangulate(ring domain.Polygon) ([]Triangle, error) {
	_, triangles, err := triangulate(ring)
	return triangles, err
}

// triangulate returns the normalized ring and its triangulation
func triangulate(ring domain.Polygon) (domain.Polygon, []Triangle, error) {
	ring, err := normalizeRing(ring)
	if err != nil {
		return nil, nil, err
	}

	remaining := make([]int, len(ring))
	for i := range remaining {
		remaining[i] = i
	}

	triangles := make([]Triangle, 0, len(ring)-2)
	for len(remaining) > 3 {
		ear := findEar(ring, remaining)
		if ear == -1 {
			// Collinear runs have no ears, drop the middle point and retry
			ear = findCollinear(ring, remaining)
			if ear == -1 {
				return nil, nil, fmt.Errorf("%w: no ear found with %d vertices left", domain.ErrInvalidGeometry, len(remaining))
			}
			remaining = append(remaining[:ear], remaining[ear+1:]...)
			continue
		}

		prev, cur, next := corner(remaining, ear)
		triangles = append(triangles, Triangle{ring[prev], ring[cur], ring[next]})
		remaining = append(remaining[:ear], remaining[ear+1:]...)
	}

	last := Triangle{ring[remaining[0]], ring[remaining[1]], ring[remaining[2]]}
	if last.Area() > epsilon {
		triangles = append(triangles, last)
	}

	return ring, triangles, nil
}

func corner(remaining []int, i int) (int, int, int) {
	n := len(remaining)
	return remaining[(i+n-1)%n], remaining[i], remaining[(i+1)%n]
}

func findEar(ring domain.Polygon, remaining []int) int {
	for i := range remaining {
		prev, cur, next := corner(remaining, i)
		a, b, c := ring[prev], ring[cur], ring[next]

		// Reflex or straight corners are not ears
		if b.Sub(a).Cross(c.Sub(b)) <= epsilon {
			continue
		}

		ear := true
		for _, other := range remaining {
			if other == prev || other == cur || other == next {
				continue
			}
			p := ring[other]
			if p == a || p == b || p == c {
				continue
			}
			if inTriangle(p, a, b, c) {
				ear = false
				break
			}
		}
		if ear {
			return i
		}
	}
	return -1
}

func findCollinear(ring domain.Polygon, remaining []int) int {
	for i := range remaining {
		prev, cur, next := corner(remaining, i)
		a, b, c := ring[prev], ring[cur], ring[next]
		if math.Abs(b.Sub(a).Cross(c.Sub(b))) <= epsilon {
			return i
		}
	}
	return -1
}

// inTriangle includes the edges of the counter-clockwise triangle abc
func inTriangle(p, a, b, c domain.Vec2) bool {
	return b.Sub(a).Cross(p.Sub(a)) >= -epsilon &&
		c.Sub(b).Cross(p.Sub(b)) >= -epsilon &&
		a.Sub(c).Cross(p.Sub(c)) >= -epsilon
}
