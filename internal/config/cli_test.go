package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitWritesDefaultSettings(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "joybridge.json")
	cmd := &ConfigInitCmd{Format: "json", Output: dest}

	require.NoError(t, cmd.Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var got Settings
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, DefaultAddress, got.Address)
	assert.True(t, got.SendReset)
}

func TestConfigInitRefusesToOverwriteWithoutForce(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "joybridge.json")
	require.NoError(t, os.WriteFile(dest, []byte("{}"), 0o644))

	cmd := &ConfigInitCmd{Format: "json", Output: dest}
	assert.Error(t, cmd.Run())
}

func TestConfigInitForceOverwrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "joybridge.json")
	require.NoError(t, os.WriteFile(dest, []byte("{}"), 0o644))

	cmd := &ConfigInitCmd{Format: "json", Output: dest, Force: true}
	assert.NoError(t, cmd.Run())
}

func TestConfigInitRejectsUnsupportedFormat(t *testing.T) {
	cmd := &ConfigInitCmd{Format: "xml", Output: filepath.Join(t.TempDir(), "joybridge.xml")}
	assert.Error(t, cmd.Run())
}

func TestConfigInitSupportsYAMLAndTOML(t *testing.T) {
	for _, format := range []string{"yaml", "toml"} {
		dest := filepath.Join(t.TempDir(), "joybridge."+format)
		cmd := &ConfigInitCmd{Format: format, Output: dest}
		require.NoError(t, cmd.Run())
		info, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "json", normalizeFormat("JSON"))
	assert.Equal(t, "yaml", normalizeFormat("yml"))
	assert.Equal(t, "toml", normalizeFormat("TOML"))
	assert.Equal(t, "", normalizeFormat("ini"))
}
