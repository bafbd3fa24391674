// Package config holds the engine configuration: which stack frames count
// as instrumentation internals, how much query text to retain, and where
// trail files go.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const modulePath = "github.com/krishiv1545/django-orm-cost"

// Config holds all tunable capture parameters.
type Config struct {
	// InternalPrefixes adds ORM/framework frames to skip during origin
	// resolution, on top of the built-in defaults. Entries match either a
	// function import path (segment-wise) or a source file path prefix.
	InternalPrefixes []string `yaml:"internal_prefixes"`

	// CaptureParams retains query parameters on captured events.
	CaptureParams bool `yaml:"capture_params"`

	// MaxStatementLen bounds stored statement text. 0 means unlimited.
	MaxStatementLen int `yaml:"max_statement_len"`

	// TrailDir, when set, makes the engine append one JSONL trail file per
	// unit of work under this directory.
	TrailDir string `yaml:"trail_dir"`
}

// DefaultInternalPrefixes returns the frames that are never host code: the
// instrumentation packages themselves and the database/sql plumbing
// between the host and any driver. External _test packages under these
// trees still count as host code, so a caller's own tests attribute
// normally.
func DefaultInternalPrefixes() []string {
	return []string{
		modulePath + "/internal/engine",
		modulePath + "/internal/uow",
		modulePath + "/sdk/go/ormcost",
		modulePath + "/sdk/go/ormcost/sqltrace",
		"database/sql",
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		InternalPrefixes: []string{},
		CaptureParams:    false,
		MaxStatementLen:  8192,
	}
}

// EffectivePrefixes returns the built-in prefixes plus the configured ones.
func (c *Config) EffectivePrefixes() []string {
	out := DefaultInternalPrefixes()
	return append(out, c.InternalPrefixes...)
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.MaxStatementLen < 0 {
		return fmt.Errorf("max_statement_len must be >= 0, got %d", c.MaxStatementLen)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// Empty path falls back to ~/.ormcost/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".ormcost", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigYAML returns a commented configuration template for
// `ormcost init`.
func DefaultConfigYAML() string {
	return `# ormcost configuration
#
# Frames matching these prefixes are treated as instrumentation internals
# and skipped when resolving which host line forced a query. Add your ORM
# or data-access layer here. Entries match function import paths
# (segment-wise) or source file path prefixes. The engine's own packages
# and database/sql are always internal.
internal_prefixes: []
#  - gorm.io/gorm
#  - github.com/jmoiron/sqlx

# Retain query parameters on captured events. Off by default: parameters
# may contain user data. Captured values pass through a PII mask (emails,
# secrets, card numbers) before they are stored.
capture_params: false

# Maximum stored statement length in bytes. 0 means unlimited.
max_statement_len: 8192

# When set, every unit of work appends a JSONL trail file here for offline
# analysis (ormcost analyze / ormcost watch).
trail_dir: ""
`
}
