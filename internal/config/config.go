package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-converter-go/internal/converter"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// BackendConfig selects the conversion backend
type BackendConfig struct {
	Name       string `mapstructure:"name"`
	MagickPath string `mapstructure:"magick_path"`
	VipsPath   string `mapstructure:"vips_path"`
}

// DefaultsConfig contains the conversion settings used when none are given
type DefaultsConfig struct {
	Quality         int    `mapstructure:"quality"`
	Format          string `mapstructure:"format"`
	OutputDirectory string `mapstructure:"output_directory"`
}

// StorageConfig contains the location of persisted state
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	UploadDir string `mapstructure:"upload_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Name:       converter.BackendMagick,
			MagickPath: converter.MagickCommand,
			VipsPath:   converter.VipsCommand,
		},
		Defaults: DefaultsConfig{
			Quality: 80,
			Format:  string(converter.FormatWebP),
		},
		Storage: StorageConfig{
			Path: defaultStorePath(),
		},
		Server: ServerConfig{
			Port:      8080,
			UploadDir: os.TempDir(),
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-converter.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.GetViper(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-converter")
		v.AddConfigPath("/etc/image-converter")
	}

	v.SetEnvPrefix("IMAGE_CONVERTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers every key so AutomaticEnv overrides reach Unmarshal
// even when the key is absent from the config file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"backend.name", "backend.magick_path", "backend.vips_path",
		"defaults.quality", "defaults.format", "defaults.output_directory",
		"storage.path",
		"server.port", "server.upload_dir",
		"logging.level", "logging.file_path", "logging.max_size",
		"logging.max_backups", "logging.max_age", "logging.compress",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.Backend.Name = strings.ToLower(strings.TrimSpace(c.Backend.Name))
	switch c.Backend.Name {
	case converter.BackendImaging, converter.BackendMagick, converter.BackendVips:
	default:
		return fmt.Errorf("invalid backend: %s (valid: %s, %s, %s)",
			c.Backend.Name, converter.BackendImaging, converter.BackendMagick, converter.BackendVips)
	}

	if c.Defaults.Quality < converter.MinQuality || c.Defaults.Quality > converter.MaxQuality {
		return fmt.Errorf("invalid default quality: %d (valid: %d-%d)",
			c.Defaults.Quality, converter.MinQuality, converter.MaxQuality)
	}

	c.Defaults.Format = strings.ToLower(strings.TrimSpace(c.Defaults.Format))
	if !converter.Format(c.Defaults.Format).IsValid() {
		return fmt.Errorf("invalid default format: %s", c.Defaults.Format)
	}

	if c.Defaults.OutputDirectory != "" {
		c.Defaults.OutputDirectory = expandPath(c.Defaults.OutputDirectory)
		if !isValidDir(c.Defaults.OutputDirectory) {
			return fmt.Errorf("output_directory does not exist or is not accessible: %s", c.Defaults.OutputDirectory)
		}
	}

	if c.Storage.Path == "" {
		c.Storage.Path = defaultStorePath()
	}
	c.Storage.Path = expandPath(c.Storage.Path)
	if strings.ToLower(filepath.Ext(c.Storage.Path)) != ".json" {
		return fmt.Errorf("storage path must end in .json: %s", c.Storage.Path)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = 8080
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = os.TempDir()
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// BackendOptions returns the executable paths for the command line backends.
func (c *Config) BackendOptions() converter.BackendOptions {
	return converter.BackendOptions{
		MagickPath: c.Backend.MagickPath,
		VipsPath:   c.Backend.VipsPath,
	}
}

// Helper functions

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "image-converter", "store.json")
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}

func isValidDir(path string) bool {
	stat, err := os.Stat(path)
	return err == nil && stat.IsDir()
}
