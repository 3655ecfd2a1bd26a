package config_test

import (
	"os"
	"testing"

	"github.com/Amund211/atlas/internal/config"
	"github.com/stretchr/testify/require"
)

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

var requiredOutsideDevelopment = []string{"TILE_SERVER_URL", "DATABASE_URL", "SENTRY_DSN"}

var allVariablesExceptEnv = map[string]string{
	"TILE_SERVER_URL":             "https://tiles.example.com/{z}/{x}/{y}.png",
	"DATABASE_URL":                "postgres://renderer:renderer@db:5432/gis",
	"SENTRY_DSN":                  "https://key@sentry.example.com/1",
	"MBTILES_PATH":                "/var/cache/atlas/tiles.mbtiles",
	"PRESETS_PATH":                "/etc/atlas/preset.yaml",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel-collector:4317",
	"DIAGNOSTICS_PORT":            "9000",
	"ATLAS_MANAGE_TILESERVER":     "true",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for variable := range allVariablesExceptEnv {
		t.Setenv(variable, "")
	}
	t.Setenv("ATLAS_MOCK_SOURCES", "")
}

func TestGetConfig(t *testing.T) {
	t.Run("environment is missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ATLAS_ENVIRONMENT", "")
		require.NoError(t, os.Unsetenv("ATLAS_ENVIRONMENT"))

		// ATLAS_ENVIRONMENT is required, so this should fail
		_, err := config.ConfigFromEnv()
		require.ErrorIs(t, err, config.ErrMissingRequiredValue)
	})

	t.Run("development uses defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ATLAS_ENVIRONMENT", "development")

		conf, err := config.ConfigFromEnv()
		require.NoError(t, err)
		require.True(t, conf.IsDevelopment())
		require.False(t, conf.IsProduction())
		require.False(t, conf.IsStaging())
		require.Equal(t, config.DefaultTileServerURL, conf.TileServerURL())
		require.Empty(t, conf.DatabaseURL())
		require.Empty(t, conf.SentryDSN())
		require.Empty(t, conf.MBTilesPath())
		require.Empty(t, conf.PresetsPath())
		require.False(t, conf.TelemetryEnabled())
		require.Equal(t, 8081, conf.DiagnosticsPort())
		require.False(t, conf.ManageTileServer())
		require.False(t, conf.MockSources())
	})

	t.Run("mock sources", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ATLAS_ENVIRONMENT", "development")
		t.Setenv("ATLAS_MOCK_SOURCES", "1")

		conf, err := config.ConfigFromEnv()
		require.NoError(t, err)
		require.True(t, conf.MockSources())
		require.Contains(t, conf.NonSensitiveString(), "mockSources: true")

		for variable, value := range allVariablesExceptEnv {
			t.Setenv(variable, value)
		}
		t.Setenv("ATLAS_ENVIRONMENT", "production")
		_, err = config.ConfigFromEnv()
		require.ErrorIs(t, err, config.ErrInvalidValue)
		require.ErrorContains(t, err, "ATLAS_MOCK_SOURCES")
	})

	t.Run("values are read correctly", func(t *testing.T) {
		for variable, value := range allVariablesExceptEnv {
			t.Setenv(variable, value)
		}

		for _, env := range []environment{production, staging, development} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("ATLAS_ENVIRONMENT", string(env))

				conf, err := config.ConfigFromEnv()
				require.NoError(t, err)
				require.Equal(t, "https://tiles.example.com/{z}/{x}/{y}.png", conf.TileServerURL())
				require.Equal(t, "postgres://renderer:renderer@db:5432/gis", conf.DatabaseURL())
				require.Equal(t, "https://key@sentry.example.com/1", conf.SentryDSN())
				require.Equal(t, "/var/cache/atlas/tiles.mbtiles", conf.MBTilesPath())
				require.Equal(t, "/etc/atlas/preset.yaml", conf.PresetsPath())
				require.Equal(t, "otel-collector:4317", conf.OTLPEndpoint())
				require.True(t, conf.TelemetryEnabled())
				require.Equal(t, 9000, conf.DiagnosticsPort())
				require.True(t, conf.ManageTileServer())
				require.Equal(t, string(env), conf.Environment())
				require.Equal(t, env == production, conf.IsProduction())
				require.Equal(t, env == staging, conf.IsStaging())
				require.Equal(t, env == development, conf.IsDevelopment())

				require.NotContains(t, conf.NonSensitiveString(), "sentry.example.com")
				require.NotContains(t, conf.NonSensitiveString(), "renderer:renderer")
			})
		}
	})

	t.Run("production and staging fail when missing variables", func(t *testing.T) {
		for variable, value := range allVariablesExceptEnv {
			t.Setenv(variable, value)
		}

		for _, env := range []environment{production, staging} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("ATLAS_ENVIRONMENT", string(env))

				for _, variable := range requiredOutsideDevelopment {
					t.Run(variable, func(t *testing.T) {
						t.Setenv(variable, "")

						_, err := config.ConfigFromEnv()
						require.ErrorIs(t, err, config.ErrMissingRequiredValue)
						require.ErrorContains(t, err, variable)
					})
				}
			})
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		cases := []struct {
			variable string
			value    string
		}{
			{variable: "ATLAS_ENVIRONMENT", value: "prod"},
			{variable: "ATLAS_ENVIRONMENT", value: ""},
			{variable: "DIAGNOSTICS_PORT", value: "http"},
			{variable: "DIAGNOSTICS_PORT", value: "70000"},
			{variable: "ATLAS_MANAGE_TILESERVER", value: "sometimes"},
			{variable: "ATLAS_MOCK_SOURCES", value: "maybe"},
			{variable: "TILE_SERVER_URL", value: "localhost"},
			{variable: "TILE_SERVER_URL", value: "http://localhost:8080/tile.png"},
		}

		for _, c := range cases {
			t.Run(c.variable+"="+c.value, func(t *testing.T) {
				clearEnv(t)
				t.Setenv("ATLAS_ENVIRONMENT", "development")
				t.Setenv(c.variable, c.value)

				_, err := config.ConfigFromEnv()
				require.ErrorIs(t, err, config.ErrInvalidValue)
			})
		}
	})
}
