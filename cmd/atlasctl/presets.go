package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/Amund211/atlas/internal/presets"
)

type PresetsListCmd struct{}

func distance(d float64) string {
	if d == math.MaxFloat64 {
		return "unlimited"
	}
	return fmt.Sprintf("%.0f", d)
}

func (c *PresetsListCmd) Run(rctx *runContext) error {
	current := presets.LoadSaved(rctx.conf.PresetsPath(), rctx.logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tTILES\tBUILDINGS\tLOD SWITCH\tWORK/FRAME")
	for _, preset := range presets.All() {
		marker := ""
		if preset.Name == current.Name {
			marker = "*"
		}
		fmt.Fprintf(
			w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			marker, preset.Name,
			distance(preset.TileDrawDist), distance(preset.BuildingDrawDist), distance(preset.LODSwitchDist),
			preset.WorkPerFrame,
		)
	}
	return w.Flush()
}

type PresetsSaveCmd struct {
	Name string `arg:"" help:"Name of the preset."`
}

func (c *PresetsSaveCmd) Run(rctx *runContext) error {
	path := rctx.conf.PresetsPath()
	if path == "" {
		return fmt.Errorf("PRESETS_PATH is not set")
	}

	if err := presets.WriteSaved(path, c.Name); err != nil {
		return err
	}

	fmt.Printf("saved %q to %s\n", c.Name, path)
	return nil
}
