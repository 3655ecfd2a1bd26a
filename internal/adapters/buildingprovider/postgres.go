package buildingprovider

import (
	"context"
	"fmt"
	"time"

	"github.com/Amund211/atlas/internal/domain"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/Amund211/atlas/internal/ratelimiting"
	"github.com/Amund211/atlas/internal/reporting"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/paulmach/orb/encoding/wkb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxQueryTime = ratelimiting.MaxOperationTime(5 * time.Second)

type Postgres struct {
	db     *sqlx.DB
	schema string
	grid   projection.Grid

	limiter *ratelimiting.WindowLimiter
	tracer  trace.Tracer
}

func NewPostgres(db *sqlx.DB, schema string, grid projection.Grid) *Postgres {
	return &Postgres{
		db:     db,
		schema: schema,
		grid:   grid,

		// Chunk queries come in bursts when the camera moves
		limiter: ratelimiting.NewWindowLimiter(32, time.Second, time.Now, time.After),
		tracer:  otel.Tracer("atlas/buildingprovider/postgres"),
	}
}

func (p *Postgres) QueryInBounds(ctx context.Context, min, max domain.Vec2) ([]domain.Building, error) {
	ctx, span := p.tracer.Start(ctx, "Postgres.QueryInBounds")
	defer span.End()

	bound := p.grid.LonLatBound(min, max)
	span.SetAttributes(
		attribute.Float64("minLon", bound.Min.Lon()),
		attribute.Float64("minLat", bound.Min.Lat()),
		attribute.Float64("maxLon", bound.Max.Lon()),
		attribute.Float64("maxLat", bound.Max.Lat()),
	)

	var buildings []domain.Building
	var queryErr error
	err := p.limiter.Limit(ctx, maxQueryTime, func() {
		buildings, queryErr = p.query(ctx, bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat())
	})
	if err != nil {
		return nil, fmt.Errorf("%w: building query not started: %w", domain.ErrTemporarilyUnavailable, err)
	}
	if queryErr != nil {
		return nil, queryErr
	}

	span.SetAttributes(attribute.Int("buildings", len(buildings)))
	return buildings, nil
}

func (p *Postgres) query(ctx context.Context, minLon, minLat, maxLon, maxLat float64) ([]domain.Building, error) {
	logger := logging.FromContext(ctx)

	txx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s, public", pq.QuoteIdentifier(p.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"schema": p.schema,
		})
		return nil, err
	}

	rows, err := txx.QueryxContext(
		ctx,
		`SELECT osm_id, ST_AsBinary(footprint), COALESCE(levels, 0)
		FROM buildings
		WHERE footprint && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY osm_id`,
		minLon, minLat, maxLon, maxLat,
	)
	if err != nil {
		err := fmt.Errorf("failed to query buildings: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"bounds": fmt.Sprintf("%f,%f,%f,%f", minLon, minLat, maxLon, maxLat),
		})
		return nil, err
	}
	defer rows.Close()

	buildings := make([]domain.Building, 0)
	skipped := 0
	for rows.Next() {
		var osmID int64
		var levels int
		footprint := wkb.Scanner(nil)
		if err := rows.Scan(&osmID, footprint, &levels); err != nil {
			err := fmt.Errorf("failed to scan building: %w", err)
			reporting.Report(ctx, err)
			return nil, err
		}
		if !footprint.Valid {
			skipped++
			continue
		}

		building, err := toBuilding(p.grid, domain.BuildingID(osmID), footprint.Geometry, levels)
		if err != nil {
			logger.DebugContext(ctx, "Skipping building", "error", err.Error())
			skipped++
			continue
		}
		buildings = append(buildings, building)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("failed to iterate buildings: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}

	if skipped > 0 {
		logger.InfoContext(ctx, "Skipped unusable buildings", "skipped", skipped, "buildings", len(buildings))
	}

	return buildings, nil
}

// ImportFromOSM copies the buildings in the WGS84 bounds from the osm2pgsql import into the buildings table.
// Returns the number of buildings written.
func (p *Postgres) ImportFromOSM(ctx context.Context, minLon, minLat, maxLon, maxLat float64) (int64, error) {
	ctx, span := p.tracer.Start(ctx, "Postgres.ImportFromOSM")
	defer span.End()

	txx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s, public", pq.QuoteIdentifier(p.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"schema": p.schema,
		})
		return 0, err
	}

	// osm2pgsql stores way geometries in web mercator and may split a relation over several rows
	result, err := txx.ExecContext(
		ctx,
		`INSERT INTO buildings (osm_id, footprint, levels)
		SELECT DISTINCT ON (osm_id)
			osm_id,
			ST_Multi(ST_Transform(way, 4326)),
			CASE WHEN tags->'building:levels' ~ '^\d{1,3}$' THEN (tags->'building:levels')::int END
		FROM public.planet_osm_polygon
		WHERE building IS NOT NULL
			AND way && ST_Transform(ST_MakeEnvelope($1, $2, $3, $4, 4326), 3857)
			AND GeometryType(way) IN ('POLYGON', 'MULTIPOLYGON')
		ORDER BY osm_id
		ON CONFLICT (osm_id) DO UPDATE SET
			footprint = EXCLUDED.footprint,
			levels = EXCLUDED.levels`,
		minLon, minLat, maxLon, maxLat,
	)
	if err != nil {
		err := fmt.Errorf("failed to import buildings: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}

	imported, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("failed to count imported buildings: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}

	if err := txx.Commit(); err != nil {
		err := fmt.Errorf("failed to commit transaction: %w", err)
		reporting.Report(ctx, err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("imported", imported))
	return imported, nil
}
