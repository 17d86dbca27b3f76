package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/vulnrecon/internal/reconcile"
	"github.com/ppiankov/vulnrecon/internal/storage"
)

// Config holds all configuration for vulnrecon
type Config struct {
	// Storage configuration
	StorageDir     string `mapstructure:"storage_dir"`
	SessionBackend string `mapstructure:"session_backend"`

	// Catalog table used by match and serve
	CatalogPath string `mapstructure:"catalog_path"`

	// Session caps (0 means unlimited)
	MaxUnmatched int `mapstructure:"max_unmatched"`
	MaxGroups    int `mapstructure:"max_groups"`

	// Output format (text, json)
	Format string `mapstructure:"format"`

	// Address for the serve command
	ListenAddr string `mapstructure:"listen_addr"`

	// Remote server; when set, session commands go through the API
	ServerURL string `mapstructure:"server_url"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Verbose output
	Verbose bool `mapstructure:"verbose"`

	// Debug mode
	Debug bool `mapstructure:"debug"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		StorageDir:     ".vulnrecon",
		SessionBackend: storage.BackendJSON,
		MaxUnmatched:   reconcile.DefaultMaxUnmatched,
		Format:         "text",
		ListenAddr:     "127.0.0.1:8080",
		LogLevel:       "info",
		LogFormat:      "console",
	}
}

// Load loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (~/.vulnrecon.yaml or ./vulnrecon.yaml)
// 3. Environment variables (VULNRECON_*)
// 4. CLI flags (handled by caller)
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file path
// If path is empty, it searches for config in standard locations
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("storage_dir", defaults.StorageDir)
	v.SetDefault("session_backend", defaults.SessionBackend)
	v.SetDefault("catalog_path", defaults.CatalogPath)
	v.SetDefault("max_unmatched", defaults.MaxUnmatched)
	v.SetDefault("max_groups", defaults.MaxGroups)
	v.SetDefault("format", defaults.Format)
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("server_url", "")
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("debug", defaults.Debug)

	v.SetConfigName("vulnrecon")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 1. Current directory
		v.AddConfigPath(".")

		// 2. Home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}

		// 3. XDG config directory
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "vulnrecon"))
		}
	}

	v.SetEnvPrefix("VULNRECON")
	v.AutomaticEnv()

	// Try to read config file (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid format: %s (must be text or json)", c.Format)
	}

	switch c.SessionBackend {
	case storage.BackendJSON, storage.BackendSQLite:
	default:
		return fmt.Errorf("invalid session_backend: %s (must be json or sqlite)", c.SessionBackend)
	}

	if c.MaxUnmatched < 0 {
		return fmt.Errorf("max_unmatched cannot be negative")
	}
	if c.MaxGroups < 0 {
		return fmt.Errorf("max_groups cannot be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be console or json)", c.LogFormat)
	}

	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}

	return nil
}

// Limits returns the session caps.
func (c *Config) Limits() reconcile.Limits {
	return reconcile.Limits{MaxUnmatched: c.MaxUnmatched, MaxGroups: c.MaxGroups}
}

// GetStoragePath returns the absolute path to the storage directory
func (c *Config) GetStoragePath() (string, error) {
	return expandPath(c.StorageDir)
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, p[2:]), nil
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() string {
	return `# vulnrecon configuration
# Save this file as ~/vulnrecon.yaml or ./vulnrecon.yaml

# Directory holding sessions and archived audit reports
storage_dir: .vulnrecon

# Session store: json (one file per session) or sqlite
session_backend: json

# Vulnerability catalog (.yaml, .yml or .csv)
catalog_path: catalog.yaml

# Maximum unmatched findings kept per session (0 = unlimited)
max_unmatched: 100

# Maximum matched groups kept per session (0 = unlimited)
max_groups: 0

# Output format: text or json
format: text

# Listen address for "vulnrecon serve"
listen_addr: 127.0.0.1:8080

# Send session commands to a running server instead of local storage
# Can also be set via VULNRECON_SERVER_URL env var
# server_url: http://127.0.0.1:8080

# Logging: debug, info, warn, error / console, json
log_level: info
log_format: console

# Enable verbose output
verbose: false

# Enable debug mode
debug: false
`
}
