package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8787, cfg.Server.Port)
	assert.True(t, cfg.Fixes.Enabled)
	assert.True(t, cfg.FixModule("dedup_tool_arguments").Enabled)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 10.0.0.5
  port: 9000
fixes:
  enabled: true
  modules:
    dedup_tool_arguments:
      enabled: false
      options:
        remove_duplicate: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.FixModule("dedup_tool_arguments").Enabled)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))

	t.Setenv("LLAMAPROXY_SERVER_PORT", "9500")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9500, cfg.Server.Port)
}

func TestMaxBodyBytesDefaultAndEnvOverride(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)

	t.Setenv("LLAMAPROXY_SERVER_MAX_BODY_BYTES", "1048576")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(1048576), cfg.Server.MaxBodyBytes)
}

func TestBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Backend.Host = "127.0.0.1"
	cfg.Backend.Port = 8080
	assert.Equal(t, "http://127.0.0.1:8080", cfg.BaseURL())
}
