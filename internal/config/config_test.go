package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/EchoPBX/gbstats/internal/emuwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, ModeDemo, c.Emulator.Mode)
	assert.Equal(t, 60, c.Emulator.FrameRate)
	assert.Equal(t, emuwatch.DefaultPollInterval, c.Emulator.PollInterval)
	assert.Equal(t, emuwatch.DefaultAddresses(), c.Emulator.Addresses)
	// every optional detection is on by default
	assert.NotZero(t, c.Emulator.Addresses.Menu)
	assert.NotZero(t, c.Emulator.Addresses.NPC)
	assert.NotZero(t, c.Emulator.Addresses.Items)
	assert.NotZero(t, c.Emulator.Addresses.Door)
	assert.Equal(t, 100, c.Health.MaxHP)
	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, "gameplay.log", c.Logging.File)
	assert.False(t, c.HTTP.Enabled)
	assert.Equal(t, 8080, c.HTTP.Port)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
emulator:
  mode: bridge
  poll_interval: 30
  addresses:
    battle: 0xD058
    menu: 0xCC26
bridge:
  url: ws://127.0.0.1:8765/frames
http:
  enabled: true
  port: 9090
logging:
  level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeBridge, c.Emulator.Mode)
	assert.Equal(t, 30, c.Emulator.PollInterval)
	assert.Equal(t, uint16(0xD058), c.Emulator.Addresses.Battle)
	assert.Equal(t, uint16(0xCC26), c.Emulator.Addresses.Menu)
	// addresses not in the file keep their defaults
	assert.Equal(t, uint16(0xD362), c.Emulator.Addresses.X)
	assert.Equal(t, "ws://127.0.0.1:8765/frames", c.Bridge.URL)
	assert.True(t, c.HTTP.Enabled)
	assert.Equal(t, 9090, c.HTTP.Port)
	assert.Equal(t, "127.0.0.1", c.HTTP.Bind)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, 60, c.Emulator.FrameRate)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "emulator: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "emulator:\n  mode: bridge\n"))
	assert.ErrorContains(t, err, "bridge.url")

	_, err = Load(writeConfig(t, "emulator:\n  mode: pyboy\n"))
	assert.ErrorContains(t, err, "unknown emulator mode")

	_, err = Load(writeConfig(t, "bus:\n  history_limit: -1\n"))
	assert.Error(t, err)
}
