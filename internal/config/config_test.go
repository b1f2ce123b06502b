package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
root             = "/srv/data"
cache_path       = "/var/lib/lsf/cache.zst"
case_insensitive = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/srv/data", cfg.Root)
	require.Equal(t, "/var/lib/lsf/cache.zst", cfg.CachePath)
	require.True(t, cfg.CaseInsensitive)
}

func TestLoadMissingFileYieldsZeroConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	require.Equal(t, Config{}, cfg)
}

func TestLoadRejectsMalformedHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`root = `), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyDefaultsFillsOnlyUnset(t *testing.T) {
	cfg := Config{CachePath: "/custom/cache.zst"}
	cfg.ApplyDefaults("/home/u")

	require.Equal(t, "/custom/cache.zst", cfg.CachePath)
	require.Equal(t, "/home/u/.cache/lsf/control", cfg.ControlPath)
	require.Equal(t, "/home/u/.cache/lsf/events.db", cfg.EventLogPath)
}
