package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "PROXY", cfg.Policy.Name)
	assert.False(t, cfg.Policy.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Server.ResultTTL)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
archive: /srv/master.zip
output_dir: /srv/out
policy:
  enabled: true
  name: DIRECT
geoip:
  database: /srv/geoip.db
  codes: [cn, private]
server:
  listen: 127.0.0.1:9000
  result_ttl: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/master.zip", cfg.Archive)
	assert.Equal(t, "domain-list-community/data", cfg.DataDir, "unset keys keep defaults")
	assert.True(t, cfg.Policy.Enabled)
	assert.Equal(t, "DIRECT", cfg.Policy.Name)
	assert.Equal(t, []string{"cn", "private"}, cfg.GeoIP.Codes)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, 2*time.Hour, cfg.Server.ResultTTL)
	assert.Equal(t, 10*time.Minute, cfg.Server.CleanupInterval)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "policy:\n  enabled: true\n  name: \"\"\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, mapping]\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
