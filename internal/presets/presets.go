package presets

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Amund211/atlas/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrUnknownPreset = errors.New("unknown graphics preset")

var (
	GenuinePotato = domain.GraphicsPreset{
		Name:              "Genuine Potato",
		Description:       "Worst possible settings for atrocious computers",
		VehicleDrawDist:   75,
		VehicleLODDist:    math.SmallestNonzeroFloat32,
		TileDrawDist:      75,
		BuildingDrawDist:  75,
		LODSwitchDist:     512,
		AnisotropicFilter: 1,
		MSAASamples:       0,
		Shadows:           false,
		WorkPerFrame:      1,
	}

	Standard = domain.GraphicsPreset{
		Name:              "Standard",
		Description:       "Balanced settings for good framerate on most computers",
		VehicleDrawDist:   3000,
		VehicleLODDist:    200,
		TileDrawDist:      8000,
		BuildingDrawDist:  3000,
		LODSwitchDist:     1024,
		AnisotropicFilter: 4,
		MSAASamples:       4,
		Shadows:           false,
		WorkPerFrame:      10,
	}

	ItRunsCrysis = domain.GraphicsPreset{
		Name:              "It Runs Crysis",
		Description:       "High settings for powerful gaming PCs or workstations",
		VehicleDrawDist:   5000,
		VehicleLODDist:    500,
		TileDrawDist:      15000,
		BuildingDrawDist:  6000,
		LODSwitchDist:     2048,
		AnisotropicFilter: 16,
		MSAASamples:       8,
		Shadows:           false,
		WorkPerFrame:      20,
	}

	NASASupercomputer = domain.GraphicsPreset{
		Name:              "NASA Supercomputer",
		Description:       "Max possible settings for ridiculously overpowered PCs to flex",
		VehicleDrawDist:   math.MaxFloat64,
		VehicleLODDist:    math.MaxFloat64,
		TileDrawDist:      math.MaxFloat64,
		BuildingDrawDist:  math.MaxFloat64,
		LODSwitchDist:     4096,
		AnisotropicFilter: 64,
		MSAASamples:       64,
		Shadows:           true,
		WorkPerFrame:      math.MaxInt,
	}
)

// All returns the presets from lowest to highest quality
func All() []domain.GraphicsPreset {
	return []domain.GraphicsPreset{GenuinePotato, Standard, ItRunsCrysis, NASASupercomputer}
}

func Default() domain.GraphicsPreset {
	return Standard
}

// ForName looks up a preset by name, ignoring case and surrounding whitespace
func ForName(name string) (domain.GraphicsPreset, error) {
	trimmed := strings.TrimSpace(name)
	for _, preset := range All() {
		if strings.EqualFold(preset.Name, trimmed) {
			return preset, nil
		}
	}
	return domain.GraphicsPreset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

type savedPreset struct {
	Preset string `yaml:"preset"`
}

// LoadSaved reads the preset selected in the file at path.
// Falls back to the default preset when the file is missing or broken.
func LoadSaved(path string, logger *slog.Logger) domain.GraphicsPreset {
	logger = logger.With(slog.String("path", path))

	if path == "" {
		logger.Info("No saved preset path, using default", "preset", Default().Name)
		return Default()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No saved preset, using default", "preset", Default().Name)
		return Default()
	} else if err != nil {
		logger.Error("Failed to read saved preset, using default", "error", err.Error())
		return Default()
	}

	var saved savedPreset
	if err := yaml.Unmarshal(data, &saved); err != nil {
		logger.Error("Failed to parse saved preset, using default", "error", err.Error())
		return Default()
	}

	preset, err := ForName(saved.Preset)
	if err != nil {
		logger.Error("Invalid saved preset, using default", "error", err.Error())
		return Default()
	}

	logger.Info("Using saved preset", "preset", preset.Name)
	return preset
}

// WriteSaved selects the preset called name in the file at path, creating it if needed
func WriteSaved(path, name string) error {
	preset, err := ForName(name)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(savedPreset{Preset: preset.Name})
	if err != nil {
		return fmt.Errorf("failed to marshal saved preset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write saved preset: %w", err)
	}
	return nil
}
