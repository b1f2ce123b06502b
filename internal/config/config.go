// Package config loads the optional HCL daemon configuration. Flags
// override file values; absent a file, defaults derived from the home
// directory apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the on-disk configuration shape.
type Config struct {
	// Root is the directory to index when the command line names none.
	Root string `hcl:"root,optional"`
	// CachePath is where the persistent snapshot lives.
	CachePath string `hcl:"cache_path,optional"`
	// ControlPath backs the cancellation issuer's shared generation.
	ControlPath string `hcl:"control_path,optional"`
	// EventLogPath backs the durable change-event log.
	EventLogPath string `hcl:"event_log_path,optional"`
	// CaseInsensitive sets the default query matching mode.
	CaseInsensitive bool `hcl:"case_insensitive,optional"`
}

// DefaultPath returns ~/.config/lsf/config.hcl, or "" when no home
// directory is resolvable.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "lsf", "config.hcl")
}

// Load reads the config at path. A missing file is not an error: the
// zero Config comes back and defaults fill in via ApplyDefaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields from the conventional cache directory
// layout under home.
func (c *Config) ApplyDefaults(home string) {
	stateDir := filepath.Join(home, ".cache", "lsf")
	if c.CachePath == "" {
		c.CachePath = filepath.Join(stateDir, "cache.zst")
	}
	if c.ControlPath == "" {
		c.ControlPath = filepath.Join(stateDir, "control")
	}
	if c.EventLogPath == "" {
		c.EventLogPath = filepath.Join(stateDir, "events.db")
	}
}
