// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the HTTP trigger/metrics surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
}

// RedisConfig locates the shared coordination store. An empty address means
// the process runs with local-only rate limiting and no work queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Queue    string `mapstructure:"queue"`
}

// RedditConfig governs the upstream API client.
type RedditConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after"`
}

// RateLimitConfig is the shared call budget every process honors.
type RateLimitConfig struct {
	MinDelay          time.Duration `mapstructure:"min_delay"`
	MaxCallsPerMinute int           `mapstructure:"max_calls_per_minute"`
}

// ScanConfig governs the crawl loop.
type ScanConfig struct {
	// Sources is the legacy fallback list used when no scan configuration
	// rows exist in the database.
	Sources []string `mapstructure:"sources"`
	// InitialScanHorizon skips items older than this that were never stored.
	// Zero disables the horizon.
	InitialScanHorizon time.Duration `mapstructure:"initial_scan_horizon"`
	// RescanHorizon stops rescanning stored items older than this. Zero
	// disables the horizon.
	RescanHorizon time.Duration `mapstructure:"rescan_horizon"`
	// RecheckWindow skips stored items scanned more recently than this.
	// Zero disables the window.
	RecheckWindow    time.Duration `mapstructure:"recheck_window"`
	CycleSleep       time.Duration `mapstructure:"cycle_sleep"`
	IgnoreSubreddits []string      `mapstructure:"ignore_subreddits"`
	IgnoreUsers      []string      `mapstructure:"ignore_users"`
}

// RefreshConfig governs the metadata refresh scheduler and workers.
type RefreshConfig struct {
	Budget        time.Duration `mapstructure:"budget"`
	Staleness     time.Duration `mapstructure:"staleness"`
	AbsentRecheck time.Duration `mapstructure:"absent_recheck"`
	Concurrency   int           `mapstructure:"concurrency"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUBINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.connect_attempts", 10)
	v.SetDefault("db.connect_backoff", "2s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.queue", "metadata_refresh_queue")

	v.SetDefault("reddit.base_url", "https://www.reddit.com")
	v.SetDefault("reddit.user_agent", "subindex/1.0 (mention scanner)")
	v.SetDefault("reddit.timeout", "15s")
	v.SetDefault("reddit.max_retries", 3)
	v.SetDefault("reddit.default_retry_after", "30s")

	v.SetDefault("rate_limit.min_delay", "6500ms")
	v.SetDefault("rate_limit.max_calls_per_minute", 8)

	v.SetDefault("scan.sources", []string{})
	v.SetDefault("scan.initial_scan_horizon", "0")
	v.SetDefault("scan.rescan_horizon", "0")
	v.SetDefault("scan.recheck_window", "0")
	v.SetDefault("scan.cycle_sleep", "10m")
	v.SetDefault("scan.ignore_subreddits", []string{"wowthissubexists", "sneakpeekbot"})
	v.SetDefault("scan.ignore_users", []string{})

	v.SetDefault("refresh.budget", "10m")
	v.SetDefault("refresh.staleness", "24h")
	v.SetDefault("refresh.absent_recheck", "168h")
	v.SetDefault("refresh.concurrency", 2)
	v.SetDefault("refresh.pop_timeout", "10s")
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.RateLimit.MinDelay <= 0 {
		return fmt.Errorf("rate_limit.min_delay must be positive")
	}
	if c.RateLimit.MaxCallsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.max_calls_per_minute must be positive")
	}
	if c.Reddit.Timeout <= 0 {
		return fmt.Errorf("reddit.timeout must be positive")
	}
	if c.Reddit.MaxRetries < 0 {
		return fmt.Errorf("reddit.max_retries must not be negative")
	}
	if c.Refresh.Concurrency <= 0 {
		return fmt.Errorf("refresh.concurrency must be positive")
	}
	if c.Scan.CycleSleep <= 0 {
		return fmt.Errorf("scan.cycle_sleep must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}
