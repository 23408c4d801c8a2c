package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlink-go/simlink/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "239.255.1.1", cfg.Beacon.Group)
	assert.Equal(t, 49707, cfg.Beacon.Port)
	assert.Equal(t, 121100, cfg.Beacon.MinVersion)
	assert.Equal(t, 3*time.Second, cfg.BeaconTimeout())

	assert.Equal(t, 5*time.Second, cfg.ValueReadTimeout())
	assert.Equal(t, 5, cfg.Value.MaxTimeouts)
	assert.Equal(t, 80, cfg.Value.MaxSubscriptions)

	assert.Equal(t, 49505, cfg.Text.Port)
	assert.Equal(t, 5*time.Second, cfg.TextInterval())
	assert.Equal(t, time.Second, cfg.TextSlack())

	assert.Equal(t, 1.0, cfg.Reconnect.InitialSeconds)
	assert.Equal(t, 10.0, cfg.Reconnect.MaxSeconds)

	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesAndKeepsRest(t *testing.T) {
	path := writeConfig(t, `
static_host: 192.168.1.50
static_port: 49000
value:
  max_subscriptions: 40
roundings:
  sim/hdg: 1
  sim/engines/n1[*]: 0
frequencies:
  sim/fast: 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.50", cfg.StaticHost)
	assert.Equal(t, 49000, cfg.StaticPort)
	assert.Equal(t, 40, cfg.Value.MaxSubscriptions)
	assert.Equal(t, 1, cfg.Roundings["sim/hdg"])
	assert.Equal(t, 10.0, cfg.Frequencies["sim/fast"])

	// Untouched sections keep their defaults.
	assert.Equal(t, 49707, cfg.Beacon.Port)
	assert.Equal(t, 5, cfg.Value.MaxTimeouts)
}

func TestLoadEmptyFileIsValid(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 49707, cfg.Beacon.Port)
}

func TestLoadRejectsStaticHostWithoutPort(t *testing.T) {
	_, err := config.Load(writeConfig(t, "static_host: 192.168.1.50\n"))
	require.Error(t, err)
}

func TestLoadRejectsNegativeRounding(t *testing.T) {
	_, err := config.Load(writeConfig(t, "roundings:\n  sim/hdg: -1\n"))
	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "beacon: ["))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
