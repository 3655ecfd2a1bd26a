package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Written by osm2pgsql when the tile server imports its extract
const OSM_POLYGON_TABLE = "planet_osm_polygon"

var ErrNoOSMImport = errors.New("the osm2pgsql import has not run")

type Migrator struct {
	db *sqlx.DB

	logger *slog.Logger
}

func NewDatabaseMigrator(db *sqlx.DB, logger *slog.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger.With(slog.String("component", "migrator")),
	}
}

// Migrate brings the buildings schema up to date, creating the schema and PostGIS if needed
func (m *Migrator) Migrate(ctx context.Context, schemaName string) error {
	if err := m.ensurePostGIS(ctx); err != nil {
		return err
	}

	conn, err := m.schemaConn(ctx, schemaName)
	if err != nil {
		return err
	}
	defer conn.Close()

	instance, closeInstance, err := newMigrateInstance(ctx, conn, schemaName)
	if err != nil {
		return err
	}
	defer closeInstance()

	m.logger.InfoContext(ctx, "Starting migrations...", "schema", schemaName)
	err = instance.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.InfoContext(ctx, "Buildings schema already up to date", "schema", schemaName)
	case err != nil:
		return fmt.Errorf("migrate: failed to migrate: %w", err)
	default:
		version, _, _ := instance.Version()
		m.logger.InfoContext(ctx, "Migrated buildings schema", "schema", schemaName, "version", version)
	}

	return nil
}

// CheckOSMImport returns ErrNoOSMImport if the tile server has not imported its extract yet.
// Buildings can only be imported once it has.
func (m *Migrator) CheckOSMImport(ctx context.Context) error {
	var exists bool
	err := m.db.GetContext(ctx, &exists, "SELECT to_regclass($1) IS NOT NULL", "public."+OSM_POLYGON_TABLE)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", OSM_POLYGON_TABLE, err)
	}
	if !exists {
		return fmt.Errorf("%w: missing table public.%s", ErrNoOSMImport, OSM_POLYGON_TABLE)
	}
	return nil
}

// The geometry type lives in public, and must be committed before the migrations reference it
func (m *Migrator) ensurePostGIS(ctx context.Context) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migrate: failed to connect for extension creation: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS postgis SCHEMA public"); err != nil {
		return fmt.Errorf("migrate: failed to create postgis extension: %w", err)
	}
	return nil
}

// schemaConn returns a connection that resolves unqualified names in schemaName, then public
func (m *Migrator) schemaConn(ctx context.Context, schemaName string) (*sql.Conn, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: failed to connect to db: %w", err)
	}

	quoted := pq.QuoteIdentifier(schemaName)
	for _, statement := range []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoted),
		fmt.Sprintf("SET search_path TO %s, public", quoted),
	} {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: failed to prepare schema %s: %w", schemaName, err)
		}
	}

	return conn, nil
}

func newMigrateInstance(ctx context.Context, conn *sql.Conn, schemaName string) (*migrate.Migrate, func(), error) {
	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("migrate: failed to create driver from embedded migrations: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		DatabaseName: DB_NAME,
		SchemaName:   schemaName,
	})
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("migrate: failed to create postgres driver: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("migrate: failed to create migration instance: %w", err)
	}

	return instance, func() { instance.Close() }, nil
}
