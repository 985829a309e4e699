package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Defaults.Quality != 80 || cfg.Defaults.Format != "webp" {
		t.Errorf("Unexpected defaults: %+v", cfg.Defaults)
	}
	if filepath.Base(cfg.Storage.Path) != "store.json" {
		t.Errorf("Unexpected store path: %s", cfg.Storage.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	outDir := t.TempDir()
	path := writeConfig(t, `
backend:
  name: VIPS
  vips_path: /opt/vips/bin/vips
defaults:
  quality: 65
  format: AVIF
  output_directory: `+outDir+`
storage:
  path: `+filepath.Join(outDir, "state.json")+`
server:
  port: 9090
logging:
  level: debug
  file_path: ""
`)

	cfg, err := load(viper.New(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Backend.Name != "vips" || cfg.BackendOptions().VipsPath != "/opt/vips/bin/vips" {
		t.Errorf("Unexpected backend: %+v", cfg.Backend)
	}
	if cfg.Defaults.Quality != 65 || cfg.Defaults.Format != "avif" || cfg.Defaults.OutputDirectory != outDir {
		t.Errorf("Unexpected defaults: %+v", cfg.Defaults)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Level != "debug" {
		t.Errorf("Unexpected server/logging: %+v %+v", cfg.Server, cfg.Logging)
	}
	if cfg.Backend.MagickPath != "magick" {
		t.Errorf("Unset keys should keep defaults, got magick_path %q", cfg.Backend.MagickPath)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "defaults:\n  quality: 65\n")
	t.Setenv("IMAGE_CONVERTER_DEFAULTS_QUALITY", "30")
	t.Setenv("IMAGE_CONVERTER_BACKEND_NAME", "imaging")

	cfg, err := load(viper.New(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Defaults.Quality != 30 {
		t.Errorf("Expected env quality 30, got %d", cfg.Defaults.Quality)
	}
	if cfg.Backend.Name != "imaging" {
		t.Errorf("Expected env backend imaging, got %s", cfg.Backend.Name)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"backend", func(c *Config) { c.Backend.Name = "sharp" }, "invalid backend"},
		{"quality low", func(c *Config) { c.Defaults.Quality = 0 }, "invalid default quality"},
		{"quality high", func(c *Config) { c.Defaults.Quality = 101 }, "invalid default quality"},
		{"format", func(c *Config) { c.Defaults.Format = "jpeg" }, "invalid default format"},
		{"output dir", func(c *Config) { c.Defaults.OutputDirectory = "/definitely/missing/dir" }, "output_directory"},
		{"store ext", func(c *Config) { c.Storage.Path = "/tmp/store.yaml" }, "storage path"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Expected error containing %q, got %v", tt.substr, err)
			}
		})
	}
}

func TestValidateNormalisesServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = -1
	cfg.Server.UploadDir = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.UploadDir == "" {
		t.Errorf("Expected normalised server config, got %+v", cfg.Server)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}
