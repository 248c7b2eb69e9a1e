// Package config provides configuration management for fedwallet.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// Preference backends.
const (
	PrefsBackendFile   = "file"
	PrefsBackendSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	Version       int                 `yaml:"version"`
	Home          string              `yaml:"home"`
	Engine        EngineConfig        `yaml:"engine"`
	Authorization AuthorizationConfig `yaml:"authorization"`
	Sync          SyncConfig          `yaml:"sync"`
	Preferences   PreferencesConfig   `yaml:"preferences"`
	Display       DisplayConfig       `yaml:"display"`
	Output        OutputConfig        `yaml:"output"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// EngineConfig holds the settings handed to the wallet engine at bring-up.
type EngineConfig struct {
	Network    string `yaml:"network"`
	Esplora    string `yaml:"esplora"`
	RGS        string `yaml:"rgs"`
	LSP        string `yaml:"lsp"`
	Proxy      string `yaml:"proxy"`
	StorageDir string `yaml:"storage_dir"`
	StateFile  string `yaml:"state_file"`
	Passphrase string `yaml:"passphrase,omitempty"`
}

// AuthorizationConfig defines the remote authorization (waitlist) service.
type AuthorizationConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// SyncConfig defines periodic synchronization settings.
type SyncConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// PreferencesConfig selects where local preferences are persisted.
type PreferencesConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// DisplayConfig defines presentation-only values.
type DisplayConfig struct {
	BTCPriceUSD float64 `yaml:"btc_price_usd"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// MetricsConfig defines the optional Prometheus listener used by `fedwallet run`.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads configuration from the specified file.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fwerr.Because(fwerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Sync.IntervalSeconds <= 0 {
		return fwerr.WithDetails(fwerr.ErrConfigInvalid, map[string]string{
			"sync.interval_seconds": fmt.Sprintf("%d", c.Sync.IntervalSeconds),
		})
	}
	if c.Authorization.TimeoutSeconds <= 0 {
		return fwerr.WithDetails(fwerr.ErrConfigInvalid, map[string]string{
			"authorization.timeout_seconds": fmt.Sprintf("%d", c.Authorization.TimeoutSeconds),
		})
	}
	switch c.Preferences.Backend {
	case PrefsBackendFile, PrefsBackendSQLite:
	default:
		return fwerr.WithDetails(fwerr.ErrConfigInvalid, map[string]string{
			"preferences.backend": c.Preferences.Backend,
		})
	}
	if c.Display.BTCPriceUSD < 0 {
		return fwerr.WithDetails(fwerr.ErrConfigInvalid, map[string]string{
			"display.btc_price_usd": fmt.Sprintf("%g", c.Display.BTCPriceUSD),
		})
	}
	return nil
}

// GetHome returns the fedwallet home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetAuthorizationURL returns the authorization service base URL.
func (c *Config) GetAuthorizationURL() string {
	return c.Authorization.BaseURL
}

// GetAuthorizationTimeout returns the HTTP timeout for authorization lookups.
func (c *Config) GetAuthorizationTimeout() time.Duration {
	return time.Duration(c.Authorization.TimeoutSeconds) * time.Second
}

// GetSyncInterval returns the periodic synchronization interval.
func (c *Config) GetSyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// PrefsPath returns the preference store location, resolved against home.
func (c *Config) PrefsPath() string {
	if c.Preferences.Path != "" {
		return ExpandHome(c.Preferences.Path)
	}
	if c.Preferences.Backend == PrefsBackendSQLite {
		return filepath.Join(ExpandHome(c.Home), "prefs.db")
	}
	return filepath.Join(ExpandHome(c.Home), "prefs.json")
}

// EngineStorageDir returns the directory the engine keeps its state in.
func (c *Config) EngineStorageDir() string {
	if c.Engine.StorageDir != "" {
		return ExpandHome(c.Engine.StorageDir)
	}
	return filepath.Join(ExpandHome(c.Home), "engine")
}

// DefaultHome returns the default fedwallet home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fedwallet"
	}
	return filepath.Join(home, ".fedwallet")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
