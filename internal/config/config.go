// Package config loads the workspace-level .graft.yaml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up at the workspace root.
const FileName = ".graft.yaml"

// Defaults applied when the config file is missing or partial.
const (
	defaultRetention = 5
)

var defaultExclude = []string{".git", "node_modules", "vendor"}

// Config represents the complete graft configuration.
type Config struct {
	// Exclude lists directory names never copied into the stage.
	Exclude []string `yaml:"exclude"`
	// BackupRetention is the number of promotion backups kept. A pointer
	// so an explicit zero (keep none) is distinguishable from unset.
	BackupRetention *int `yaml:"backup_retention"`
	// Checks are shell commands run in the effective root after an apply.
	Checks []string `yaml:"checks"`
	// Log toggles the append-only audit event log.
	Log *bool `yaml:"log"`
}

// Load reads and parses the configuration at root. A missing file yields
// the defaults; a malformed one is an error.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.applyDefaults()

			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Exclude == nil {
		c.Exclude = append([]string(nil), defaultExclude...)
	}

	if c.BackupRetention == nil {
		retention := defaultRetention
		c.BackupRetention = &retention
	}

	if c.Log == nil {
		enabled := true
		c.Log = &enabled
	}
}

// Validate checks semantic constraints the YAML schema cannot express.
func (c *Config) Validate() error {
	if c.BackupRetention != nil && *c.BackupRetention < 0 {
		return fmt.Errorf("backup_retention must not be negative")
	}

	for _, name := range c.Exclude {
		if name == "" || name == "." || name == ".." {
			return fmt.Errorf("exclude entries must be plain directory names, got %q", name)
		}
	}

	return nil
}

// Retention returns the number of promotion backups to keep.
func (c *Config) Retention() int {
	if c.BackupRetention == nil {
		return defaultRetention
	}

	return *c.BackupRetention
}

// LogEnabled reports whether audit logging is on.
func (c *Config) LogEnabled() bool {
	return c.Log != nil && *c.Log
}
