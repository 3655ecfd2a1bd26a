package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Amund211/atlas/internal/config"
	"github.com/Amund211/atlas/internal/logging"
	"github.com/alecthomas/kong"
)

var cli struct {
	Verbose bool `short:"v" help:"Log at debug level."`

	Tileserver struct {
		Status TileserverStatusCmd `cmd:"" help:"Show whether the tile server container is running and serving tiles."`
		Start  TileserverStartCmd  `cmd:"" help:"Start the tile server container if it is not running."`
	} `cmd:""`

	Prefetch PrefetchCmd `cmd:"" help:"Copy tiles from the tile server into an MBTiles file."`

	Buildings struct {
		Import BuildingsImportCmd `cmd:"" help:"Import building footprints from the tile server's OSM database."`
	} `cmd:""`

	Presets struct {
		List PresetsListCmd `cmd:"" help:"List the graphics presets."`
		Save PresetsSaveCmd `cmd:"" help:"Select the graphics preset used on the next start."`
	} `cmd:""`
}

type runContext struct {
	ctx    context.Context
	conf   config.Config
	logger *slog.Logger
}

func main() {
	kctx := kong.Parse(&cli, kong.Name("atlasctl"), kong.ShortUsageOnError())

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	conf, err := config.ConfigFromEnv()
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&runContext{
		ctx:    logging.AddToContext(ctx, logger),
		conf:   conf,
		logger: logger,
	})
	kctx.FatalIfErrorf(err)
}
