package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		StateBackend:            "json",
		ModePolicy:              "setpoint",
		CycleIntervalMinutes:    2,
		AutosaveIntervalMinutes: 5,
		ActionDelayMillis:       1000,
		Weather:                 Weather{CacheMinutes: 15},
		Units: []Unit{
			{ID: "living", Room: "living_room"},
			{ID: "bedroom", Room: "bedroom"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Units = append(cfg.Units, Unit{ID: "living"}, Unit{})
	cfg.StateBackend = "postgres"
	cfg.ModePolicy = "magic"
	cfg.CycleIntervalMinutes = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate unit id "living"`)
	assert.Contains(t, err.Error(), "units[3].id is required")
	assert.Contains(t, err.Error(), `unknown state_backend "postgres"`)
	assert.Contains(t, err.Error(), `unknown mode_policy "magic"`)
	assert.Contains(t, err.Error(), "cycle_interval_minutes must be positive")
}

func TestValidate_NoUnits(t *testing.T) {
	cfg := validConfig()
	cfg.Units = nil
	assert.ErrorContains(t, cfg.Validate(), "at least one unit")
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"log_level": "debug",
		"units": [{"id": "u1", "name": "Living Room", "room": "living", "priority": 3}],
		"weather": {"latitude": 45.5, "longitude": -122.6}
	}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.CycleInterval())
	assert.Equal(t, 5*time.Minute, cfg.AutosaveInterval())
	assert.Equal(t, time.Second, cfg.ActionDelay())
	assert.Equal(t, 4*time.Hour, cfg.ManualOverrideTTL())
	assert.Equal(t, "json", cfg.StateBackend)
	assert.Equal(t, "setpoint", cfg.ModePolicy)
	assert.Equal(t, 15, cfg.Weather.CacheMinutes)
	assert.Equal(t, 70.0, cfg.Weather.FallbackTempF)
	assert.Equal(t, 45.5, cfg.Weather.Latitude)

	require.Len(t, cfg.Units, 1)
	assert.Equal(t, "Living Room", cfg.Units[0].Name)
	require.NotNil(t, cfg.Units[0].Priority)
	assert.Equal(t, 3, *cfg.Units[0].Priority)
}

func TestLoadFile_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"units": [{"id": "u1"}]}`), 0o644))
	t.Setenv("MINISPLIT_CYCLE_INTERVAL_MINUTES", "7")
	t.Setenv("MINISPLIT_DEVICE_TOKEN", "secret")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.CycleIntervalMinutes)
	assert.Equal(t, "secret", cfg.Device.Token)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("anything"))
}
