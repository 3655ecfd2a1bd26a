package quadtree

import (
	"math"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/hashicorp/go-set/v2"
)

// ResourceCache is the cache holding the resource of each node
type ResourceCache[K comparable, V any] interface {
	Retrieve(key K, onReady func(V))
	MarkUsed(key K)
	Get(key K) (V, bool)
}

// ChildKeyFunc derives the key of the child in quadrant (dx, dy) of parent
type ChildKeyFunc[K comparable] func(parent K, origin domain.Vec2, size float64, dx, dy int) K

type Options struct {
	// Smallest node size. Nodes of this size are never split.
	MinSize float64

	BBoxPadding float64
	BBoxHeight  float64

	// Scale the draw distance by the camera height in units of HeightUnit, never below 1
	HeightScaled bool
	HeightUnit   float64

	// Also request the resource of nodes one size band above the target, so something is drawn while
	// their children stream in
	KeepParentBand bool

	DrawDistance func(preset domain.GraphicsPreset) float64
	// nil always splits down to MinSize
	LODSwitchDistance func(preset domain.GraphicsPreset) float64
}

// Tree is a forest of quadtrees over a common resource cache
type Tree[K comparable, V any] struct {
	cache    ResourceCache[K, V]
	childKey ChildKeyFunc[K]
	opts     Options
	roots    []*Node[K, V]
}

func New[K comparable, V any](cache ResourceCache[K, V], childKey ChildKeyFunc[K], opts Options) *Tree[K, V] {
	if opts.HeightUnit <= 0 {
		opts.HeightUnit = 1
	}
	return &Tree[K, V]{
		cache:    cache,
		childKey: childKey,
		opts:     opts,
	}
}

func (t *Tree[K, V]) newNode(origin domain.Vec2, size float64, key K) *Node[K, V] {
	return &Node[K, V]{
		Origin: origin,
		Size:   size,
		Key:    key,
		bbox:   domain.NewGroundBox(origin, size, t.opts.BBoxPadding, t.opts.BBoxHeight),
	}
}

func (t *Tree[K, V]) AddRoot(origin domain.Vec2, size float64, key K) *Node[K, V] {
	root := t.newNode(origin, size, key)
	t.roots = append(t.roots, root)
	return root
}

func (t *Tree[K, V]) Roots() []*Node[K, V] {
	return t.roots
}

// NodeCount is the number of nodes currently alive in all trees
func (t *Tree[K, V]) NodeCount() int {
	total := 0
	for _, root := range t.roots {
		total += root.count()
	}
	return total
}

// Reset collapses every root
func (t *Tree[K, V]) Reset() {
	for _, root := range t.roots {
		root.collapse()
	}
}

type collectPass struct {
	camera    domain.Vec3
	frustum   domain.Frustum
	drawDist  float64
	lodSwitch float64
}

// CollectVisible returns the nodes to draw for this camera. The resource of each returned node is requested
// and marked as used.
func (t *Tree[K, V]) CollectVisible(camera domain.Camera, preset domain.GraphicsPreset) []*Node[K, V] {
	pass := collectPass{
		camera:    camera.Position,
		frustum:   camera.Frustum(),
		drawDist:  math.Inf(1),
		lodSwitch: math.Inf(1),
	}
	if t.opts.DrawDistance != nil {
		pass.drawDist = t.opts.DrawDistance(preset)
	}
	if t.opts.HeightScaled {
		pass.drawDist *= max(camera.Position.Y/t.opts.HeightUnit, 1)
	}
	if t.opts.LODSwitchDistance != nil {
		pass.lodSwitch = t.opts.LODSwitchDistance(preset)
	}

	visible := make([]*Node[K, V], 0, 64)
	for _, root := range t.roots {
		visible = t.collect(root, &pass, visible)
	}
	return visible
}

func (t *Tree[K, V]) collect(n *Node[K, V], pass *collectPass, visible []*Node[K, V]) []*Node[K, V] {
	ground := domain.Vec3{X: pass.camera.X, Y: 0, Z: pass.camera.Z}
	dist := pass.camera.Dist(n.bbox.ClosestPoint(ground))

	if dist >= pass.drawDist || !pass.frustum.ContainsBox(n.bbox) {
		n.DidCull = true
		n.DidUseSubtree = false
		n.collapse()
		return visible
	}
	n.DidCull = false

	target := LODSize(t.opts.MinSize, dist, pass.lodSwitch)
	if n.Size <= target || n.Size <= t.opts.MinSize {
		t.use(n)
		n.DidUseSubtree = false
		n.collapse()
		return append(visible, n)
	}

	if t.opts.KeepParentBand && n.Size <= 2*target {
		t.use(n)
	}

	n.expand(t)
	for _, child := range n.children {
		visible = t.collect(child, pass, visible)
	}
	n.DidUseSubtree = true
	return visible
}

func (t *Tree[K, V]) use(n *Node[K, V]) {
	t.cache.Retrieve(n.Key, nil)
	t.cache.MarkUsed(n.Key)
}

// Drawable is the resource standing in for a visible node
type Drawable[K comparable, V any] struct {
	Node  *Node[K, V]
	Key   K
	Value V
}

// Drawables resolves each node to its closest ancestor (itself included) with a resource the cache can hand
// out, placeholders included. Nodes sharing an ancestor produce a single drawable. Nodes without any such
// ancestor are skipped.
//
// Ancestors standing in for a node are marked as used.
func (t *Tree[K, V]) Drawables(nodes []*Node[K, V]) []Drawable[K, V] {
	seen := set.New[*Node[K, V]](len(nodes))
	drawables := make([]Drawable[K, V], 0, len(nodes))

	for _, node := range nodes {
		for candidate := node; candidate != nil; candidate = candidate.parent {
			value, ok := t.cache.Get(candidate.Key)
			if !ok {
				continue
			}
			if candidate != node {
				// Keep the stand-in alive until the node itself is ready
				t.cache.MarkUsed(candidate.Key)
			}
			if seen.Insert(candidate) {
				drawables = append(drawables, Drawable[K, V]{Node: candidate, Key: candidate.Key, Value: value})
			}
			break
		}
	}

	return drawables
}
