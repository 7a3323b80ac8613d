// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load() layers defaults, optional YAML file, and FAVEDEX_* env vars.
// - External errors are wrapped via this package's sentinel kinds.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the persistence backend: "memory" or "sqlite".
	StoreBackend string `koanf:"store_backend"`

	// SQLitePath locates the database file for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// SyncWorkerCount bounds concurrent per-owner reconciliation.
	SyncWorkerCount int `koanf:"sync_worker_count"`

	// MaxRankingLimit caps GET /ranking?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// ConflictRetryCount bounds per-owner conflict retry attempts.
	ConflictRetryCount int `koanf:"conflict_retry_count"`

	// ConflictBackoffMS is the initial retry backoff in milliseconds.
	ConflictBackoffMS int `koanf:"conflict_backoff_ms"`

	// AdminToken gates the destructive endpoints. Empty disables them.
	AdminToken string `koanf:"admin_token"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		StoreBackend:       "memory",
		SQLitePath:         "data/favedex.db",
		SyncWorkerCount:    8,
		MaxRankingLimit:    100,
		ConflictRetryCount: 3,
		ConflictBackoffMS:  50,
	}
}
