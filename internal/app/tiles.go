package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/adapters/tileprovider"
	"github.com/Amund211/atlas/internal/cache"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/workqueue"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type TileCache = cache.AsyncCache[domain.TileKey, *graphics.Texture]

const placeholderSize = 16

var placeholderColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

// NewPlaceholderTexture uploads the flat texture drawn for tiles that failed to load.
// Must be called on the render thread.
func NewPlaceholderTexture(device graphics.Device) (*graphics.Texture, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
	for y := range placeholderSize {
		for x := range placeholderSize {
			img.SetRGBA(x, y, placeholderColor)
		}
	}

	texture, err := device.NewTexture(img)
	if err != nil {
		return nil, fmt.Errorf("failed to upload placeholder texture: %w", err)
	}
	return texture, nil
}

type tileConstructor struct {
	provider    tileprovider.TileProvider
	device      graphics.Device
	queue       *workqueue.Queue
	placeholder *graphics.Texture
	tracer      trace.Tracer
}

// Construct runs on a cache worker. Decoding happens here, only the upload is handed to the render thread.
func (c *tileConstructor) Construct(ctx context.Context, key domain.TileKey) (*graphics.Texture, error) {
	ctx, span := c.tracer.Start(ctx, "tileConstructor.Construct")
	defer span.End()
	span.SetAttributes(attribute.String("tile", key.String()))

	data, err := c.provider.FetchTile(ctx, key)
	if err != nil {
		// NOTE: TileProvider implementations handle their own error reporting
		return c.placeholder, fmt.Errorf("%w: failed to fetch tile %s: %w", domain.ErrTemporarilyUnavailable, key, err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return c.placeholder, fmt.Errorf("%w: failed to decode tile %s: %w", domain.ErrTemporarilyUnavailable, key, err)
	}

	texture, err := workqueue.Call(ctx, c.queue, func() (*graphics.Texture, error) {
		return c.device.NewTexture(img)
	})
	if err != nil {
		return c.placeholder, fmt.Errorf("%w: failed to upload tile %s: %w", domain.ErrTemporarilyUnavailable, key, err)
	}

	return texture, nil
}

// NewTileCache returns the cache of tile textures. Tiles that can't be loaded are drawn with placeholder
// until a retry succeeds. The cache never disposes placeholder.
func NewTileCache(
	provider tileprovider.TileProvider,
	device graphics.Device,
	queue *workqueue.Queue,
	placeholder *graphics.Texture,
	opts cache.Options[domain.TileKey, *graphics.Texture],
	logger *slog.Logger,
) (*TileCache, error) {
	constructor := &tileConstructor{
		provider:    provider,
		device:      device,
		queue:       queue,
		placeholder: placeholder,
		tracer:      otel.Tracer("atlas/app/tiles"),
	}

	tiles, err := cache.New("tiles", cache.Constructor[domain.TileKey, *graphics.Texture](constructor), opts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}
	return tiles, nil
}
