package tileprovider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/Amund211/atlas/internal/domain"
)

const (
	mockTileSize   = 256
	mockCheckers   = 8
	mockCheckerLen = mockTileSize / mockCheckers
)

var (
	mockLight = color.RGBA{R: 0xd8, G: 0xd8, B: 0xd0, A: 0xff}
	mockDark  = color.RGBA{R: 0x9a, G: 0xa8, B: 0x96, A: 0xff}
)

type mockedTileProvider struct{}

// NewMock returns a provider rendering checkerboards. Adjacent tiles start on opposite colours.
func NewMock() TileProvider {
	return mockedTileProvider{}
}

func (mockedTileProvider) FetchTile(ctx context.Context, key domain.TileKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CheckerboardPNG((key.X + key.Y) & 1)
}

// CheckerboardPNG encodes a checkerboard tile. phase 1 swaps the colours.
func CheckerboardPNG(phase int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, mockTileSize, mockTileSize))
	for y := range mockTileSize {
		for x := range mockTileSize {
			c := mockLight
			if (x/mockCheckerLen+y/mockCheckerLen+phase)&1 == 1 {
				c = mockDark
			}
			img.SetRGBA(x, y, c)
		}
	}

	buf := bytes.Buffer{}
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode checkerboard: %w", err)
	}
	return buf.Bytes(), nil
}
