// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

const appName = "nisfere"

// Default configuration values.
const (
	DefaultCacheFile  = "notifications.json"
	DefaultStateFile  = "state.json"
	DefaultSortField  = "id"
	DefaultSortOrder  = "desc"
	DefaultFormat     = "plain"
	DefaultBodyWidth  = 60
	DefaultDaemonFile = "nisfered.toml"
	DefaultCLIFile    = "config.toml"
)

// Config represents the nisfere CLI configuration.
type Config struct {
	List   ListConfig   `toml:"list"`
	Output OutputConfig `toml:"output"`
}

// ListConfig holds default options for "nisfere list".
type ListConfig struct {
	Limit int    `toml:"limit"` // Max notifications (0 = unlimited)
	Sort  string `toml:"sort"`  // id, app, urgency
	Order string `toml:"order"` // asc, desc
}

// OutputConfig holds output formatting defaults.
type OutputConfig struct {
	Format    string `toml:"format"`     // plain, json, yaml, dmenu, ids
	BodyWidth int    `toml:"body_width"` // Body truncation in plain output (0 = no body)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		List: ListConfig{
			Limit: 0,
			Sort:  DefaultSortField,
			Order: DefaultSortOrder,
		},
		Output: OutputConfig{
			Format:    DefaultFormat,
			BodyWidth: DefaultBodyWidth,
		},
	}
}

// ConfigDir returns $XDG_CONFIG_HOME/nisfere.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// DataDir returns $XDG_DATA_HOME/nisfere.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// ConfigPath returns the path to the CLI config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), DefaultCLIFile)
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() string {
	return filepath.Join(ConfigDir(), DefaultDaemonFile)
}

// DefaultCachePath returns the default location of the notification cache.
func DefaultCachePath() string {
	return filepath.Join(DataDir(), DefaultCacheFile)
}

// StatePath returns the path to the daemon state file.
func StatePath() string {
	return filepath.Join(DataDir(), DefaultStateFile)
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.List.Limit < 0 {
		return fmt.Errorf("list.limit must not be negative, got %d", c.List.Limit)
	}
	switch c.List.Order {
	case "asc", "desc":
	default:
		return fmt.Errorf("invalid list.order %q, must be asc or desc", c.List.Order)
	}
	switch c.Output.Format {
	case "plain", "json", "yaml", "dmenu", "ids":
	default:
		return fmt.Errorf("invalid output.format %q, must be plain, json, yaml, dmenu or ids", c.Output.Format)
	}
	if c.Output.BodyWidth < 0 {
		return fmt.Errorf("output.body_width must not be negative, got %d", c.Output.BodyWidth)
	}
	return nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataDir()
	if path == "" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0700)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
