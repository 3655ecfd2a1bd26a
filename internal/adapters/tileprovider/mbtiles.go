package tileprovider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// MBTiles stores tiles in an MBTiles 1.3 SQLite file. Rows use the TMS scheme, counted from the south.
type MBTiles struct {
	db *sqlx.DB
}

func OpenMBTiles(path string) (*MBTiles, error) {
	if path == "" {
		return nil, fmt.Errorf("empty mbtiles path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mbtiles directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS metadata (
			name TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL,
			PRIMARY KEY (zoom_level, tile_column, tile_row)
		);`,
		`INSERT OR IGNORE INTO metadata (name, value) VALUES
			('name', 'atlas'),
			('format', 'png'),
			('type', 'baselayer'),
			('version', '1.3');`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialise mbtiles: %w", err)
		}
	}

	return &MBTiles{db: db}, nil
}

func tmsRow(key domain.TileKey) int {
	return (1 << key.Zoom) - 1 - key.Y
}

// Get returns domain.ErrTileNotFound for tiles that are not stored
func (m *MBTiles) Get(ctx context.Context, key domain.TileKey) ([]byte, error) {
	var data []byte
	err := m.db.GetContext(
		ctx,
		&data,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		key.Zoom, key.X, tmsRow(key),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tile %s not stored", domain.ErrTileNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tile %s: %w", key, err)
	}
	return data, nil
}

func (m *MBTiles) Put(ctx context.Context, key domain.TileKey, data []byte) error {
	_, err := m.db.ExecContext(
		ctx,
		"INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)",
		key.Zoom, key.X, tmsRow(key), data,
	)
	if err != nil {
		return fmt.Errorf("failed to write tile %s: %w", key, err)
	}
	return nil
}

func (m *MBTiles) Count(ctx context.Context) (int, error) {
	var count int
	if err := m.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM tiles"); err != nil {
		return 0, fmt.Errorf("failed to count tiles: %w", err)
	}
	return count, nil
}

// SetBounds records the WGS84 extent of the map in the metadata table
func (m *MBTiles) SetBounds(ctx context.Context, grid projection.Grid, minZoom, maxZoom int) error {
	nw, se := grid.Bounds()
	bound := grid.LonLatBound(nw, se)
	values := map[string]string{
		"bounds":  fmt.Sprintf("%f,%f,%f,%f", bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()),
		"minzoom": fmt.Sprint(minZoom),
		"maxzoom": fmt.Sprint(maxZoom),
	}
	for name, value := range values {
		_, err := m.db.ExecContext(ctx, "INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", name, value)
		if err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", name, err)
		}
	}
	return nil
}

func (m *MBTiles) Metadata(ctx context.Context) (map[string]string, error) {
	rows := []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}{}
	if err := m.db.SelectContext(ctx, &rows, "SELECT name, value FROM metadata"); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	metadata := make(map[string]string, len(rows))
	for _, row := range rows {
		metadata[row.Name] = row.Value
	}
	return metadata, nil
}

func (m *MBTiles) Close() error {
	return m.db.Close()
}
