package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"1", "1", true},
		{"true", "true", true},
		{"TRUE", "TRUE", true},
		{"yes", "yes", true},
		{"on", "on", true},
		{"with spaces", "  true  ", true},
		{"0", "0", false},
		{"false", "false", false},
		{"no", "no", false},
		{"off", "off", false},
		{"empty", "", false},
		{"random", "random", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, parseBool(tc.input))
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean URL", "https://waitlist.example.dev", "https://waitlist.example.dev"},
		{"surrounding spaces", "  https://waitlist.example.dev  ", "https://waitlist.example.dev"},
		{"trailing slash", "https://waitlist.example.dev/", "https://waitlist.example.dev"},
		{"control characters", "https://wait\x00list.example.dev\n", "https://waitlist.example.dev"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeURL(tc.input))
		})
	}
}

//nolint:paralleltest // t.Setenv cannot be combined with t.Parallel
func TestApplyEnvironment(t *testing.T) {
	t.Setenv(EnvHome, "/srv/fedwallet")
	t.Setenv(EnvAuthURL, " http://localhost:8787/ ")
	t.Setenv(EnvNetwork, "REGTEST")
	t.Setenv(EnvOutputFormat, "JSON")
	t.Setenv(EnvVerbose, "yes")
	t.Setenv(EnvLogLevel, "Debug")
	t.Setenv(EnvSyncInterval, "10")
	t.Setenv(EnvPrefsBackend, "SQLite")
	t.Setenv(EnvEnginePassphrase, "hunter2")
	t.Setenv(EnvMetricsAddr, " :9090 ")

	cfg := Defaults()
	ApplyEnvironment(cfg)

	assert.Equal(t, "/srv/fedwallet", cfg.Home)
	assert.Equal(t, "http://localhost:8787", cfg.Authorization.BaseURL)
	assert.Equal(t, "regtest", cfg.Engine.Network)
	assert.Equal(t, "json", cfg.Output.DefaultFormat)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Sync.IntervalSeconds)
	assert.Equal(t, PrefsBackendSQLite, cfg.Preferences.Backend)
	assert.Equal(t, "hunter2", cfg.Engine.Passphrase)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddr)
}

//nolint:paralleltest // t.Setenv cannot be combined with t.Parallel
func TestApplyEnvironment_InvalidSyncInterval(t *testing.T) {
	for _, v := range []string{"0", "-5", "soon"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv(EnvSyncInterval, v)
			cfg := Defaults()
			ApplyEnvironment(cfg)
			assert.Equal(t, DefaultSyncIntervalSeconds, cfg.Sync.IntervalSeconds)
		})
	}
}

//nolint:paralleltest // t.Setenv cannot be combined with t.Parallel
func TestApplyEnvironment_Unset(t *testing.T) {
	t.Setenv(EnvHome, "")
	t.Setenv(EnvAuthURL, "")

	cfg := Defaults()
	ApplyEnvironment(cfg)

	assert.Equal(t, Defaults(), cfg)
}
