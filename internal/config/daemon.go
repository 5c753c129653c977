package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/nisfere/internal/model"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", "1h30m", or quoted integer milliseconds ("5000").
// A value of "0" means never expire.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Milliseconds returns the duration in milliseconds.
func (d Duration) Milliseconds() int {
	return int(time.Duration(d).Milliseconds())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// SourceMode selects how nisfered obtains notifications.
type SourceMode string

const (
	// SourceModeServer owns org.freedesktop.Notifications.
	SourceModeServer SourceMode = "server"
	// SourceModeMonitor watches another daemon's traffic.
	SourceModeMonitor SourceMode = "monitor"
)

// DaemonConfig is the configuration for nisfered.
// Loaded from $XDG_CONFIG_HOME/nisfere/nisfered.toml
type DaemonConfig struct {
	Cache    CacheConfig   `toml:"cache"`
	Source   SourceConfig  `toml:"source"`
	Timeouts TimeoutConfig `toml:"timeouts"`
	DnD      DnDConfig     `toml:"dnd"`
	Notify   NotifyConfig  `toml:"notify"`
	Log      LogConfig     `toml:"log"`
}

// CacheConfig contains notification cache settings.
type CacheConfig struct {
	Path            string `toml:"path"`              // Durable JSON file; ~ is expanded
	CreateIfMissing bool   `toml:"create_if_missing"` // Provision an empty [] store on startup
}

// SourceConfig selects the notification source.
type SourceConfig struct {
	Mode            string `toml:"mode"`             // "server" or "monitor"
	MonitorCapacity int    `toml:"monitor_capacity"` // Live notifications remembered in monitor mode
}

// TimeoutConfig contains popup timeout settings per urgency level.
// They apply when a client asks for the server default (expire_timeout -1).
// A value of "0" means never expire.
type TimeoutConfig struct {
	Low      Duration `toml:"low"`      // e.g., "5s", "1m", or "5000"
	Normal   Duration `toml:"normal"`   // e.g., "10s", "1m", or "10000"
	Critical Duration `toml:"critical"` // e.g., "0" for never expire
}

// DnDConfig contains Do Not Disturb settings.
type DnDConfig struct {
	Enabled bool `toml:"enabled"` // Initial state when no state file exists
}

// NotifyConfig controls notifications nisfered raises about itself.
type NotifyConfig struct {
	Internal bool `toml:"internal"` // Config reload results and cache write failures
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Cache: CacheConfig{
			Path:            DefaultCachePath(),
			CreateIfMissing: true,
		},
		Source: SourceConfig{
			Mode:            string(SourceModeServer),
			MonitorCapacity: 256,
		},
		Timeouts: TimeoutConfig{
			Low:      Duration(5 * time.Second),
			Normal:   Duration(10 * time.Second),
			Critical: Duration(0), // Never expires
		},
		DnD: DnDConfig{
			Enabled: false,
		},
		Notify: NotifyConfig{
			Internal: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadDaemonConfig loads the daemon configuration from path, or from
// DaemonConfigPath when path is empty. If the file doesn't exist, returns
// the default configuration.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		path = DaemonConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	config := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.Cache.Path = expandPath(config.Cache.Path)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveDaemonConfig writes config to path atomically.
func SaveDaemonConfig(path string, config *DaemonConfig) error {
	if path == "" {
		path = DaemonConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	if strings.TrimSpace(c.Cache.Path) == "" {
		return fmt.Errorf("cache.path must not be empty")
	}

	switch SourceMode(c.Source.Mode) {
	case SourceModeServer, SourceModeMonitor:
	default:
		return fmt.Errorf("invalid source.mode %q, must be %q or %q", c.Source.Mode, SourceModeServer, SourceModeMonitor)
	}
	if c.Source.MonitorCapacity < 1 {
		return fmt.Errorf("source.monitor_capacity must be at least 1, got %d", c.Source.MonitorCapacity)
	}

	for name, d := range map[string]Duration{
		"low":      c.Timeouts.Low,
		"normal":   c.Timeouts.Normal,
		"critical": c.Timeouts.Critical,
	} {
		if d < 0 {
			return fmt.Errorf("timeouts.%s must not be negative", name)
		}
	}

	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// GetTimeoutForUrgency returns the popup timeout for the given urgency level.
// Zero means never expire.
func (c *DaemonConfig) GetTimeoutForUrgency(urgency model.Urgency) time.Duration {
	switch urgency {
	case model.UrgencyLow:
		return c.Timeouts.Low.Duration()
	case model.UrgencyCritical:
		return c.Timeouts.Critical.Duration()
	default: // Normal or unknown
		return c.Timeouts.Normal.Duration()
	}
}

// LogLevel returns the configured slog level.
func (c *DaemonConfig) LogLevel() slog.Level {
	level, err := ParseLogLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel parses debug, info, warn or error. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q, must be debug, info, warn or error", s)
	}
}
