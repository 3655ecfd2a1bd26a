package quadtree

import (
	"math"

	"github.com/Amund211/atlas/internal/domain"
)

// Node is a square region of the ground plane. Children are created on demand and dropped with their
// subtree once the node is drawn as a whole or culled.
type Node[K comparable, V any] struct {
	Origin domain.Vec2
	Size   float64
	Key    K

	// Non-owning
	parent   *Node[K, V]
	children []*Node[K, V]
	bbox     domain.BoundingBox

	// Set by the most recent collection pass
	DidCull       bool
	DidUseSubtree bool
}

func (n *Node[K, V]) Parent() *Node[K, V] {
	return n.parent
}

// Children returns nil for a collapsed node and the four quadrants for an expanded one
func (n *Node[K, V]) Children() []*Node[K, V] {
	return n.children
}

func (n *Node[K, V]) BBox() domain.BoundingBox {
	return n.bbox
}

func (n *Node[K, V]) Expanded() bool {
	return n.children != nil
}

func (n *Node[K, V]) collapse() {
	n.children = nil
}

// expand creates the quadrants (0,0), (1,0), (0,1), (1,1) unless they exist
func (n *Node[K, V]) expand(t *Tree[K, V]) {
	if n.children != nil {
		return
	}

	childSize := n.Size / 2
	n.children = make([]*Node[K, V], 0, 4)
	for _, quadrant := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		dx, dy := quadrant[0], quadrant[1]
		origin := domain.Vec2{
			X: n.Origin.X + float64(dx)*childSize,
			Y: n.Origin.Y + float64(dy)*childSize,
		}
		child := t.newNode(origin, childSize, t.childKey(n.Key, origin, childSize, dx, dy))
		child.parent = n
		n.children = append(n.children, child)
	}
}

func (n *Node[K, V]) count() int {
	total := 1
	for _, child := range n.children {
		total += child.count()
	}
	return total
}

// LODSize is the node size to draw at distance dist: minSize doubled once per unit of distance.
// A non-positive or infinite unit always gives minSize.
func LODSize(minSize, dist, unit float64) float64 {
	if unit <= 0 || math.IsInf(unit, 0) || math.IsNaN(unit) || dist <= 0 {
		return minSize
	}

	exponent := math.Floor(dist / unit)
	// Anything past this is larger than the world
	exponent = min(exponent, 60)
	return math.Ldexp(minSize, int(exponent))
}
