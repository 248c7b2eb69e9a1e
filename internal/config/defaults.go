package config

// DefaultAuthorizationURL is the default waitlist/authorization service.
const DefaultAuthorizationURL = "https://waitlist.mutiny-waitlist.workers.dev"

// DefaultSyncIntervalSeconds is how often the session synchronizes balances.
const DefaultSyncIntervalSeconds = 60

// DefaultBTCPriceUSD is the fixed display price used until a price feed exists.
const DefaultBTCPriceUSD = 30000

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.fedwallet",
		Engine: EngineConfig{
			Network:   "signet",
			Esplora:   "https://mutinynet.com/api",
			RGS:       "https://rgs.mutinynet.com/snapshot/",
			LSP:       "https://signet-lsp.mutinywallet.com",
			Proxy:     "wss://p.mutinywallet.com",
			StateFile: "engine.age",
		},
		Authorization: AuthorizationConfig{
			BaseURL:        DefaultAuthorizationURL,
			TimeoutSeconds: 30,
			RatePerSecond:  2,
			Burst:          4,
		},
		Sync: SyncConfig{
			IntervalSeconds: DefaultSyncIntervalSeconds,
		},
		Preferences: PreferencesConfig{
			Backend: PrefsBackendFile,
		},
		Display: DisplayConfig{
			BTCPriceUSD: DefaultBTCPriceUSD,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.fedwallet/fedwallet.log",
		},
	}
}
