package constants

const USER_AGENT = "atlas/1.0 (+https://github.com/Amund211/atlas)"

// Zoom levels of the imagery pyramid
const (
	MIN_ZOOM       = 13
	MAX_ZOOM       = 20
	TOTAL_MAX_ZOOM = 23
)

// World units covered by a tile at TOTAL_MAX_ZOOM
const MIN_TILE_SIZE = 16

const (
	MAX_TILES       = 4096
	MAX_BUILDINGS   = 2048
	WORK_QUEUE_CAP  = 8192
	TILE_BBOX_PAD   = 64
	STOREY_HEIGHT   = 12.9
	MAX_STOREYS     = 90
	CHUNK_ZOOM      = 15
	HEIGHT_LOD_UNIT = 400
)
