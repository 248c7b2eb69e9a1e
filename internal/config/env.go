package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome             = "FEDWALLET_HOME"
	EnvAuthURL          = "FEDWALLET_AUTH_URL"
	EnvNetwork          = "FEDWALLET_NETWORK"
	EnvOutputFormat     = "FEDWALLET_OUTPUT_FORMAT"
	EnvVerbose          = "FEDWALLET_VERBOSE"
	EnvLogLevel         = "FEDWALLET_LOG_LEVEL"
	EnvSyncInterval     = "FEDWALLET_SYNC_INTERVAL"
	EnvPrefsBackend     = "FEDWALLET_PREFS_BACKEND"
	EnvEnginePassphrase = "FEDWALLET_ENGINE_PASSPHRASE" // #nosec G101 -- variable name, not a credential
	EnvMetricsAddr      = "FEDWALLET_METRICS_ADDR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvAuthURL); v != "" {
		cfg.Authorization.BaseURL = SanitizeURL(v)
	}

	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Engine.Network = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// FEDWALLET_SYNC_INTERVAL is in seconds
	if v := os.Getenv(EnvSyncInterval); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.Sync.IntervalSeconds = secs
		}
	}

	if v := os.Getenv(EnvPrefsBackend); v != "" {
		cfg.Preferences.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvEnginePassphrase); v != "" {
		cfg.Engine.Passphrase = v
	}

	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.ListenAddr = strings.TrimSpace(v)
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL trims whitespace, control characters and trailing slashes from a
// user-provided URL so paths can be joined onto it.
func SanitizeURL(url string) string {
	url = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(url))
	return strings.TrimRight(url, "/")
}
