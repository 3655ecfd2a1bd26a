package app

import (
	"fmt"
	"time"

	"github.com/Amund211/atlas/internal/adapters/graphics"
	"github.com/Amund211/atlas/internal/cache"
	"github.com/Amund211/atlas/internal/domain"
	"github.com/dustin/go-humanize"
)

type Diagnostics struct {
	Frame  uint64      `json:"frame"`
	Preset string      `json:"preset"`
	Camera domain.Vec3 `json:"camera"`

	Tiles     cache.Stats `json:"tiles"`
	Buildings cache.Stats `json:"buildings"`

	// Visible nodes, and the resources actually drawn for them after falling back to ancestors
	TilesVisible   int `json:"tilesVisible"`
	TilesOnScreen  int `json:"tilesOnScreen"`
	ChunksVisible  int `json:"chunksVisible"`
	ChunksOnScreen int `json:"chunksOnScreen"`

	TileNodes  int `json:"tileNodes"`
	ChunkNodes int `json:"chunkNodes"`

	WorkDone int `json:"workDone"`
	WorkLeft int `json:"workLeft"`

	ClaimedBuildings uint64 `json:"claimedBuildings"`

	// nil when the device doesn't keep stats
	Device *graphics.Stats `json:"device,omitempty"`

	Time time.Time `json:"time"`
}

func (d Diagnostics) String() string {
	s := fmt.Sprintf(
		"frame %s (%s): %s/%s tiles, %s/%s chunks, %s nodes, work %s done %s left, %s buildings claimed",
		humanize.Comma(int64(d.Frame)),
		d.Preset,
		humanize.Comma(int64(d.TilesOnScreen)),
		humanize.Comma(int64(d.TilesVisible)),
		humanize.Comma(int64(d.ChunksOnScreen)),
		humanize.Comma(int64(d.ChunksVisible)),
		humanize.Comma(int64(d.TileNodes+d.ChunkNodes)),
		humanize.Comma(int64(d.WorkDone)),
		humanize.Comma(int64(d.WorkLeft)),
		humanize.Comma(int64(d.ClaimedBuildings)),
	)
	if d.Device != nil {
		s += fmt.Sprintf(
			", %d textures (%s), %d models (%s)",
			d.Device.Textures, humanize.IBytes(uint64(d.Device.TextureBytes)),
			d.Device.Models, humanize.IBytes(uint64(d.Device.ModelBytes)),
		)
	}
	return s
}
