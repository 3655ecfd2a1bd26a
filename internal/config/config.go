package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

// DefaultTileServerURL is the tile endpoint of a locally running openstreetmap-tile-server container
const DefaultTileServerURL = "http://localhost:8080/tile/{z}/{x}/{y}.png"

const defaultDiagnosticsPort = 8081

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	tileServerURL    string
	databaseURL      string
	sentryDSN        string
	mbtilesPath      string
	presetsPath      string
	otlpEndpoint     string
	diagnosticsPort  int
	manageTileServer bool
	mockSources      bool
	env              environment
}

// TileServerURL returns the tile URL template containing {z}, {x} and {y}
func (c *Config) TileServerURL() string {
	return c.tileServerURL
}

func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

// MBTilesPath is the on-disk tile store. Empty disables it.
func (c *Config) MBTilesPath() string {
	return c.mbtilesPath
}

func (c *Config) PresetsPath() string {
	return c.presetsPath
}

func (c *Config) OTLPEndpoint() string {
	return c.otlpEndpoint
}

func (c *Config) TelemetryEnabled() bool {
	return c.otlpEndpoint != ""
}

func (c *Config) DiagnosticsPort() int {
	return c.diagnosticsPort
}

// ManageTileServer reports whether the tile server container should be started if it is not running
func (c *Config) ManageTileServer() bool {
	return c.manageTileServer
}

// MockSources replaces the tile server and building database with generated data. Development only.
func (c *Config) MockSources() bool {
	return c.mockSources
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, tileServerURL: %s, mbtilesPath: %s, presetsPath: %s, diagnosticsPort: %d, manageTileServer: %t, mockSources: %t, ...}",
		string(c.env), c.tileServerURL, c.mbtilesPath, c.presetsPath, c.diagnosticsPort, c.manageTileServer, c.mockSources,
	)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("ATLAS_ENVIRONMENT")
	if !ok {
		return missingKey("ATLAS_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("ATLAS_ENVIRONMENT", rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	tileServerURL := os.Getenv("TILE_SERVER_URL")
	databaseURL := os.Getenv("DATABASE_URL")
	sentryDSN := os.Getenv("SENTRY_DSN")
	mbtilesPath := os.Getenv("MBTILES_PATH")
	presetsPath := os.Getenv("PRESETS_PATH")
	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	if env == production || env == staging {
		if tileServerURL == "" {
			return missingKey("TILE_SERVER_URL")
		}
		if databaseURL == "" {
			return missingKey("DATABASE_URL")
		}
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	if tileServerURL == "" {
		tileServerURL = DefaultTileServerURL
	}
	parsed, err := url.Parse(tileServerURL)
	if err != nil || parsed.Host == "" || !strings.Contains(tileServerURL, "{z}") {
		return invalidValue("TILE_SERVER_URL", tileServerURL)
	}

	diagnosticsPort := defaultDiagnosticsPort
	if rawPort := os.Getenv("DIAGNOSTICS_PORT"); rawPort != "" {
		diagnosticsPort, err = strconv.Atoi(rawPort)
		if err != nil || diagnosticsPort <= 0 || diagnosticsPort > 65535 {
			return invalidValue("DIAGNOSTICS_PORT", rawPort)
		}
	}

	manageTileServer := false
	if rawManage := os.Getenv("ATLAS_MANAGE_TILESERVER"); rawManage != "" {
		manageTileServer, err = strconv.ParseBool(rawManage)
		if err != nil {
			return invalidValue("ATLAS_MANAGE_TILESERVER", rawManage)
		}
	}

	mockSources := false
	if rawMock := os.Getenv("ATLAS_MOCK_SOURCES"); rawMock != "" {
		mockSources, err = strconv.ParseBool(rawMock)
		if err != nil || (mockSources && env != development) {
			return invalidValue("ATLAS_MOCK_SOURCES", rawMock)
		}
	}

	return Config{
		tileServerURL:    tileServerURL,
		databaseURL:      databaseURL,
		sentryDSN:        sentryDSN,
		mbtilesPath:      mbtilesPath,
		presetsPath:      presetsPath,
		otlpEndpoint:     otlpEndpoint,
		diagnosticsPort:  diagnosticsPort,
		manageTileServer: manageTileServer,
		mockSources:      mockSources,
		env:              env,
	}, nil
}
