package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/atlas/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Database created by the openstreetmap-tile-server image
const DB_NAME = "gis"

const LOCAL_CONNECTION_STRING = "user=renderer password=renderer dbname=gis host=localhost port=5432 sslmode=disable"

const MAIN_SCHEMA = "atlas"
const TESTING_SCHEMA = "atlas_test"

// Matches the number of chunk queries let through per second, the rest wait for a connection
const MAX_OPEN_CONNS = 32

func GetSchemaName(isTesting bool) string {
	if isTesting {
		return TESTING_SCHEMA
	}
	return MAIN_SCHEMA
}

func NewPostgresDatabase(connectionString string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	db.SetMaxOpenConns(MAX_OPEN_CONNS)
	db.SetMaxIdleConns(MAX_OPEN_CONNS / 4)
	db.SetConnMaxIdleTime(time.Minute)

	if err := createDatabaseIfNotExists(db, DB_NAME); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return db, nil
}

func connectionString(conf config.Config) (string, error) {
	if conf.DatabaseURL() != "" {
		return conf.DatabaseURL(), nil
	}
	if !conf.IsDevelopment() {
		return "", fmt.Errorf("missing database url in non-development environment")
	}
	// The tile server container exposes its database locally
	return LOCAL_CONNECTION_STRING, nil
}

func NewPostgresDatabaseFromConfig(conf config.Config) (*sqlx.DB, error) {
	connectionString, err := connectionString(conf)
	if err != nil {
		return nil, err
	}

	db, err := NewPostgresDatabase(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres database: %w", err)
	}

	return db, nil
}

// ConnectWhenReady retries connecting every interval until the database accepts connections or ctx is done.
// The tile server container starts its database some time after the container itself is up.
func ConnectWhenReady(ctx context.Context, conf config.Config, interval time.Duration, logger *slog.Logger) (*sqlx.DB, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		db, err := NewPostgresDatabaseFromConfig(conf)
		if err == nil {
			return db, nil
		}
		logger.InfoContext(ctx, "Waiting for building database", "attempt", attempt, "error", err.Error())

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("building database not reachable after %d attempts: %w", attempt, err)
		case <-ticker.C:
		}
	}
}

func createDatabaseIfNotExists(db *sqlx.DB, dbName string) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM pg_database WHERE datname = $1", dbName); err != nil {
		return fmt.Errorf("createDB: failed to check if database exists: %w", err)
	}

	if count > 0 {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))); err != nil {
		return fmt.Errorf("createDB: failed to create database: %w", err)
	}

	return nil
}
