package buildingprovider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/atlas/internal/adapters/database"
	"github.com/Amund211/atlas/internal/config"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/jmoiron/sqlx"
)

// The first start of the tile server container imports its extract before the database comes up
const databaseStartTimeout = 10 * time.Minute

// NewBuildingProviderOrMock connects to and migrates the configured database.
// Development without a database url, or with mocked sources, gets mock buildings. The returned func closes the connection.
func NewBuildingProviderOrMock(ctx context.Context, conf config.Config, grid projection.Grid, logger *slog.Logger) (BuildingProvider, func(), error) {
	if conf.MockSources() || (conf.DatabaseURL() == "" && conf.IsDevelopment()) {
		logger.InfoContext(ctx, "Using mock buildings")
		return NewMock(), func() {}, nil
	}

	var db *sqlx.DB
	var err error
	if conf.ManageTileServer() {
		waitCtx, cancel := context.WithTimeout(ctx, databaseStartTimeout)
		db, err = database.ConnectWhenReady(waitCtx, conf, 2*time.Second, logger)
		cancel()
	} else {
		db, err = database.NewPostgresDatabaseFromConfig(conf)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to building database: %w", err)
	}

	schema := database.GetSchemaName(!conf.IsProduction())
	migrator := database.NewDatabaseMigrator(db, logger)
	if err := migrator.Migrate(ctx, schema); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate building database: %w", err)
	}
	if err := migrator.CheckOSMImport(ctx); err != nil {
		// Chunks stay empty until `atlasctl buildings import` has run
		logger.WarnContext(ctx, "Building source not imported", "error", err.Error())
	}

	return NewPostgres(db, schema, grid), func() { db.Close() }, nil
}
