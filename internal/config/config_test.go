package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.CaptureParams {
		t.Error("params capture should default off")
	}
	if cfg.MaxStatementLen != 8192 {
		t.Errorf("max_statement_len = %d, want 8192", cfg.MaxStatementLen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestEffectivePrefixesIncludeBuiltins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InternalPrefixes = []string{"gorm.io/gorm"}

	got := cfg.EffectivePrefixes()
	want := append(DefaultInternalPrefixes(), "gorm.io/gorm")
	for _, p := range want {
		found := false
		for _, g := range got {
			if g == p {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("effective prefixes missing %q: %v", p, got)
		}
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MaxStatementLen != DefaultConfig().MaxStatementLen {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "capture_params: true\ninternal_prefixes:\n  - gorm.io/gorm\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.CaptureParams {
		t.Error("capture_params not applied")
	}
	if len(cfg.InternalPrefixes) != 1 || cfg.InternalPrefixes[0] != "gorm.io/gorm" {
		t.Errorf("internal_prefixes = %v", cfg.InternalPrefixes)
	}
	// Unspecified fields keep defaults.
	if cfg.MaxStatementLen != 8192 {
		t.Errorf("max_statement_len = %d, want default 8192", cfg.MaxStatementLen)
	}
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "internal_prefixes: ["},
		{"negative statement limit", "max_statement_len: -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML()), &cfg); err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if cfg.MaxStatementLen != DefaultConfig().MaxStatementLen {
		t.Errorf("template max_statement_len = %d, want %d", cfg.MaxStatementLen, DefaultConfig().MaxStatementLen)
	}
	if cfg.CaptureParams != DefaultConfig().CaptureParams {
		t.Error("template capture_params differs from defaults")
	}
}
