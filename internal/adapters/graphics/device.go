package graphics

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/Amund211/atlas/internal/meshgen"
)

// MaxTextureSize is the largest texture side accepted
const MaxTextureSize = 4096

// Device owns GPU resources. Its methods must be called on the render thread.
type Device interface {
	NewTexture(img image.Image) (*Texture, error)
	NewModel(mesh meshgen.Mesh) (*Model, error)
}

type handle struct {
	id       uint64
	bytes    int
	release  func(bytes int)
	disposed atomic.Bool
}

func (h *handle) ID() uint64 {
	return h.id
}

// Dispose frees the resource. Calling it more than once is a no-op.
func (h *handle) Dispose() {
	if h.disposed.CompareAndSwap(false, true) {
		h.release(h.bytes)
	}
}

func (h *handle) Disposed() bool {
	return h.disposed.Load()
}

type Texture struct {
	handle
	Width  int
	Height int
}

type Model struct {
	handle
	Vertices  int
	Triangles int
}

// Stats counts live resources
type Stats struct {
	Textures     int `json:"textures"`
	TextureBytes int `json:"textureBytes"`
	Models       int `json:"models"`
	ModelBytes   int `json:"modelBytes"`
}

// Headless is a Device that only accounts for resources
type Headless struct {
	nextID atomic.Uint64

	mu    sync.Mutex
	stats Stats
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (d *Headless) NewTexture(img image.Image) (*Texture, error) {
	bounds := img.Bounds()
	if bounds.Empty() || bounds.Dx() > MaxTextureSize || bounds.Dy() > MaxTextureSize {
		return nil, fmt.Errorf("unsupported texture size %dx%d", bounds.Dx(), bounds.Dy())
	}

	bytes := 4 * bounds.Dx() * bounds.Dy()

	d.mu.Lock()
	d.stats.Textures++
	d.stats.TextureBytes += bytes
	d.mu.Unlock()

	return &Texture{
		handle: handle{
			id:    d.nextID.Add(1),
			bytes: bytes,
			release: func(bytes int) {
				d.mu.Lock()
				defer d.mu.Unlock()
				d.stats.Textures--
				d.stats.TextureBytes -= bytes
			},
		},
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func (d *Headless) NewModel(mesh meshgen.Mesh) (*Model, error) {
	if len(mesh.Positions)%3 != 0 || len(mesh.Indices)%3 != 0 {
		return nil, fmt.Errorf("malformed mesh with %d position floats and %d indices", len(mesh.Positions), len(mesh.Indices))
	}
	for _, index := range mesh.Indices {
		if int(index) >= mesh.VertexCount() {
			return nil, fmt.Errorf("mesh index %d out of range for %d vertices", index, mesh.VertexCount())
		}
	}

	bytes := mesh.SizeBytes()

	d.mu.Lock()
	d.stats.Models++
	d.stats.ModelBytes += bytes
	d.mu.Unlock()

	return &Model{
		handle: handle{
			id:    d.nextID.Add(1),
			bytes: bytes,
			release: func(bytes int) {
				d.mu.Lock()
				defer d.mu.Unlock()
				d.stats.Models--
				d.stats.ModelBytes -= bytes
			},
		},
		Vertices:  mesh.VertexCount(),
		Triangles: mesh.TriangleCount(),
	}, nil
}

func (d *Headless) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
