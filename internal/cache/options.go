package cache

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidOptions = errors.New("invalid cache options")

const (
	DefaultStartGCThreshold = 0.9
	DefaultEndGCThreshold   = 0.5

	// One second at 30 frames per second
	DefaultPlaceholderRetryFrames = 30
)

type Options[K comparable, V any] struct {
	// Capacity the GC thresholds are relative to
	MaxItems int

	// A GC pass starts when size/MaxItems reaches StartGCThreshold and evicts unused entries until
	// size/MaxItems is at most EndGCThreshold
	StartGCThreshold float64
	EndGCThreshold   float64

	// Number of background constructors. <= 0 uses one per CPU.
	Workers int

	// Frames a placeholder is served before the key is constructed again. 0 retries on the next Retrieve.
	PlaceholderRetryFrames int

	// Called for every evicted entry before the value is disposed.
	// Runs on the goroutine that triggered the eviction.
	OnEvict func(key K, value V)

	Now func() time.Time
}

func DefaultOptions[K comparable, V any](maxItems int) Options[K, V] {
	return Options[K, V]{
		MaxItems:         maxItems,
		StartGCThreshold: DefaultStartGCThreshold,
		EndGCThreshold:   DefaultEndGCThreshold,

		PlaceholderRetryFrames: DefaultPlaceholderRetryFrames,
	}
}

func (o Options[K, V]) validate() error {
	if o.MaxItems <= 0 {
		return fmt.Errorf("%w: MaxItems must be positive, got %d", ErrInvalidOptions, o.MaxItems)
	}
	if o.StartGCThreshold <= 0 {
		return fmt.Errorf("%w: StartGCThreshold must be positive, got %f", ErrInvalidOptions, o.StartGCThreshold)
	}
	if o.EndGCThreshold < 0 || o.EndGCThreshold > o.StartGCThreshold {
		return fmt.Errorf(
			"%w: EndGCThreshold must be in [0, StartGCThreshold], got %f (start %f)",
			ErrInvalidOptions, o.EndGCThreshold, o.StartGCThreshold,
		)
	}
	if o.PlaceholderRetryFrames < 0 {
		return fmt.Errorf("%w: PlaceholderRetryFrames must not be negative, got %d", ErrInvalidOptions, o.PlaceholderRetryFrames)
	}
	return nil
}
