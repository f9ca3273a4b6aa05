package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"state_backend": backend,
		"state_dir":     filepath.Join(dir, "state"),
		"db_path":       filepath.Join(dir, "coord.db"),
		"units": []map[string]any{
			{"id": "living", "room": "living"},
			{"id": "office", "room": "office"},
		},
		"service": map[string]any{
			"unit_path": filepath.Join(dir, "minisplit-coordinator.service"),
			"exec_path": "/usr/local/bin/minisplit-coordinator",
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func run(t *testing.T, configFile string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-file", configFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSetRangeAndStatus(t *testing.T) {
	for _, backend := range []string{"json", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := writeConfig(t, backend)

			out, err := run(t, cfg, "set-range", "66", "71")
			require.NoError(t, err)
			assert.Contains(t, out, "66.0-71.0")

			out, err = run(t, cfg, "status")
			require.NoError(t, err)
			assert.Contains(t, out, "range:     66.0-71.0°F")
			assert.Contains(t, out, "living")
			assert.Contains(t, out, "office")
		})
	}
}

func TestSetRangeRejectsInvalid(t *testing.T) {
	cfg := writeConfig(t, "json")

	_, err := run(t, cfg, "set-range", "75", "70")
	assert.Error(t, err)

	_, err = run(t, cfg, "set-range", "warm", "70")
	assert.Error(t, err)

	out, err := run(t, cfg, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "range:     68.0-72.0°F")
}

func TestSetMode(t *testing.T) {
	cfg := writeConfig(t, "json")

	out, err := run(t, cfg, "set-mode", "heat")
	require.NoError(t, err)
	assert.Contains(t, out, "Global mode set to heat")

	out, err = run(t, cfg, "set-mode", "heat")
	require.NoError(t, err)
	assert.Contains(t, out, "already heat")

	_, err = run(t, cfg, "set-mode", "auto")
	assert.Error(t, err)
}

func TestClearOverrideArgs(t *testing.T) {
	cfg := writeConfig(t, "json")

	out, err := run(t, cfg, "clear-override", "living")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared for living")

	out, err = run(t, cfg, "clear-override", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 manual override(s)")

	_, err = run(t, cfg, "clear-override")
	assert.Error(t, err)

	_, err = run(t, cfg, "clear-override", "living", "--all")
	assert.Error(t, err)

	_, err = run(t, cfg, "clear-override", "garage")
	assert.ErrorContains(t, err, "unknown unit")
}

func TestConflictsAndResolve(t *testing.T) {
	cfg := writeConfig(t, "json")

	out, err := run(t, cfg, "conflicts")
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")

	_, err = run(t, cfg, "resolve", "0", "fixed")
	assert.ErrorContains(t, err, "out of range")

	_, err = run(t, cfg, "resolve", "first", "fixed")
	assert.Error(t, err)
}

func TestInstallService(t *testing.T) {
	cfg := writeConfig(t, "json")

	out, err := run(t, cfg, "install-service")
	require.NoError(t, err)
	assert.Contains(t, out, "systemctl enable --now minisplit-coordinator.service")

	unit, err := os.ReadFile(filepath.Join(filepath.Dir(cfg), "minisplit-coordinator.service"))
	require.NoError(t, err)
	assert.Contains(t, string(unit), "--config-file "+cfg)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "missing.json"), "status")
	assert.Error(t, err)
}
