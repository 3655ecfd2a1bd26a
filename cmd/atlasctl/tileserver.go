package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Amund211/atlas/internal/adapters/tileserver"
)

func newManager(rctx *runContext) *tileserver.Manager {
	return tileserver.NewManager(
		tileserver.ExecRunner{},
		&http.Client{Timeout: 10 * time.Second},
		rctx.conf.TileServerURL(),
		rctx.logger,
	)
}

type TileserverStatusCmd struct{}

func (c *TileserverStatusCmd) Run(rctx *runContext) error {
	manager := newManager(rctx)

	fmt.Printf("container running: %t\n", manager.IsRunning(rctx.ctx))
	fmt.Printf("serving tiles:     %t\n", manager.Poll(rctx.ctx))
	return nil
}

type TileserverStartCmd struct {
	Wait    bool          `default:"true" negatable:"" help:"Wait until the tile server serves tiles."`
	Timeout time.Duration `default:"30m" help:"How long to wait for the first import to finish."`
}

func (c *TileserverStartCmd) Run(rctx *runContext) error {
	manager := newManager(rctx)

	if err := manager.MaybeStart(rctx.ctx); err != nil {
		return err
	}
	if !c.Wait {
		return nil
	}

	ctx, cancel := context.WithTimeout(rctx.ctx, c.Timeout)
	defer cancel()
	if err := manager.WaitUntilReady(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("tile server not ready after %s: %w", c.Timeout, err)
	}

	fmt.Println("tile server is ready")
	return nil
}
