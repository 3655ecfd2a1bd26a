package main

import (
	"fmt"

	"github.com/Amund211/atlas/internal/adapters/buildingprovider"
	"github.com/Amund211/atlas/internal/adapters/database"
	"github.com/Amund211/atlas/internal/projection"
	"github.com/dustin/go-humanize"
)

type BuildingsImportCmd struct {
	Testing bool `help:"Import into the testing schema."`
}

func (c *BuildingsImportCmd) Run(rctx *runContext) error {
	db, err := database.NewPostgresDatabaseFromConfig(rctx.conf)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := database.GetSchemaName(c.Testing)
	migrator := database.NewDatabaseMigrator(db, rctx.logger)
	if err := migrator.Migrate(rctx.ctx, schema); err != nil {
		return err
	}
	if err := migrator.CheckOSMImport(rctx.ctx); err != nil {
		return fmt.Errorf("%w, start the tile server first", err)
	}

	grid := projection.NewDefault()
	bound := grid.LonLatBound(grid.Bounds())

	imported, err := buildingprovider.NewPostgres(db, schema, grid).ImportFromOSM(
		rctx.ctx,
		bound.Min.Lon(), bound.Min.Lat(),
		bound.Max.Lon(), bound.Max.Lat(),
	)
	if err != nil {
		return err
	}

	fmt.Printf("imported %s buildings into %s\n", humanize.Comma(imported), schema)
	return nil
}
