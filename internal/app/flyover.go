package app

import (
	"math"
	"time"

	"github.com/Amund211/atlas/internal/domain"
)

// Flyover circles the centre of the map, looking down at a point halfway to it
type Flyover struct {
	Radius float64
	Height float64
	Period time.Duration

	FieldOfView float64
	Aspect      float64
}

func DefaultFlyover() Flyover {
	return Flyover{
		Radius:      3000,
		Height:      600,
		Period:      5 * time.Minute,
		FieldOfView: 67,
		Aspect:      16.0 / 9.0,
	}
}

func (f Flyover) CameraAt(elapsed time.Duration) domain.Camera {
	angle := 0.0
	if f.Period > 0 {
		angle = 2 * math.Pi * float64(elapsed%f.Period) / float64(f.Period)
	}
	cos, sin := math.Cos(angle), math.Sin(angle)

	position := domain.Vec3{X: f.Radius * cos, Y: f.Height, Z: f.Radius * sin}
	target := domain.Vec3{X: f.Radius / 2 * cos, Y: 0, Z: f.Radius / 2 * sin}
	return domain.NewCamera(position, target, f.FieldOfView, f.Aspect)
}
