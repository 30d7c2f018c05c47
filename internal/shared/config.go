package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	OAuth    OAuthConfig    `toml:"oauth"`
}

// BackendConfig contains connection settings for the hosted backend.
type BackendConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// DatabaseConfig contains settings for the local continuity database.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig tunes the session manager and collection cache.
//
// All values are seconds. The defaults mirror the documented contract:
// sessions refresh at most every 30s, collections refetch at most every 60s,
// resumed collections older than 300s are forced, and a fetch that has not
// completed after 15s has its bookkeeping reset.
type CacheConfig struct {
	SessionMinRefreshSecs      int `toml:"session_min_refresh_secs"`
	SessionRefreshIntervalSecs int `toml:"session_refresh_interval_secs"`
	SessionMaxRetries          int `toml:"session_max_retries"`
	CollectionMinFetchSecs     int `toml:"collection_min_fetch_secs"`
	CollectionMaxAgeSecs       int `toml:"collection_max_age_secs"`
	CollectionRefreshSecs      int `toml:"collection_refresh_interval_secs"`
	FetchTimeoutSecs           int `toml:"fetch_timeout_secs"`
}

// OAuthConfig contains credentials for provider sign-in.
type OAuthConfig struct {
	Provider     string `toml:"provider"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// SessionMinRefresh returns the minimum interval between session refreshes.
func (c CacheConfig) SessionMinRefresh() time.Duration {
	return secsOr(c.SessionMinRefreshSecs, 30*time.Second)
}

// SessionRefreshInterval returns the periodic session refresh cadence.
func (c CacheConfig) SessionRefreshInterval() time.Duration {
	return secsOr(c.SessionRefreshIntervalSecs, 15*time.Minute)
}

// MaxRetries returns the bounded retry budget for session refreshes.
func (c CacheConfig) MaxRetries() int {
	if c.SessionMaxRetries <= 0 {
		return 5
	}
	return c.SessionMaxRetries
}

// CollectionMinFetch returns the minimum interval between collection fetches.
func (c CacheConfig) CollectionMinFetch() time.Duration {
	return secsOr(c.CollectionMinFetchSecs, time.Minute)
}

// CollectionMaxAge returns the staleness threshold applied on resume.
func (c CacheConfig) CollectionMaxAge() time.Duration {
	return secsOr(c.CollectionMaxAgeSecs, 5*time.Minute)
}

// CollectionRefreshInterval returns the periodic collection refresh cadence.
func (c CacheConfig) CollectionRefreshInterval() time.Duration {
	return secsOr(c.CollectionRefreshSecs, 10*time.Minute)
}

// FetchTimeout returns the safety timeout for a stuck collection fetch.
func (c CacheConfig) FetchTimeout() time.Duration {
	return secsOr(c.FetchTimeoutSecs, 15*time.Second)
}

func secsOr(secs int, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
