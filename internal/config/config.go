// Package config defines the top-level configuration for the risk daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RISKD_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Risk     RiskConfig     `toml:"risk"`
	Archive  ArchiveConfig  `toml:"archive"`
	Sim      SimConfig      `toml:"sim"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"` // namespace for all keys; defaults to "riskd"
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RiskConfig holds the engine thresholds and pass timing.
type RiskConfig struct {
	// MinInterval bounds how often a full evaluation pass runs. Ticks that
	// arrive sooner are dropped, not queued.
	MinInterval duration `toml:"min_interval"`
	// FeeRate is the close fee as a fraction of exit notional.
	FeeRate float64 `toml:"fee_rate"`
	// MarginCallLevel is the margin level (percent) at or below which a
	// margin call alert is raised.
	MarginCallLevel float64 `toml:"margin_call_level"`
	// StopOutLevel is the margin level (percent) at or below which the worst
	// position is force-closed.
	StopOutLevel float64 `toml:"stop_out_level"`
	// MaxDrawdownPct is the fraction of starting balance that, once lost,
	// breaches the account.
	MaxDrawdownPct float64 `toml:"max_drawdown_pct"`
	// DailyDrawdownPct is the fraction below the daily baseline at which the
	// account breaches.
	DailyDrawdownPct float64 `toml:"daily_drawdown_pct"`
	// PassLockTTL enables a distributed pass lock when positive, so multiple
	// engine instances sharing one database skip a pass instead of racing it.
	PassLockTTL duration `toml:"pass_lock_ttl"`
	// AccountConcurrency bounds how many accounts are evaluated in parallel
	// within one pass.
	AccountConcurrency int `toml:"account_concurrency"`
}

// ArchiveConfig holds cold-storage export parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// SimConfig holds parameters for the synthetic-tick simulation mode.
type SimConfig struct {
	Symbols      []string `toml:"symbols"`
	TickInterval duration `toml:"tick_interval"`
	// SpreadBps is the synthetic bid/ask half-spread in basis points.
	SpreadBps float64 `toml:"spread_bps"`
	// VolatilityBps is the per-tick random walk step in basis points.
	VolatilityBps float64 `toml:"volatility_bps"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "2s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "2s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "riskd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "riskd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Risk: RiskConfig{
			MinInterval:        duration{2 * time.Second},
			FeeRate:            0.0007,
			MarginCallLevel:    100,
			StopOutLevel:       50,
			MaxDrawdownPct:     0.10,
			DailyDrawdownPct:   0.05,
			PassLockTTL:        duration{0},
			AccountConcurrency: 1,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		Sim: SimConfig{
			Symbols:       []string{"BTCUSD", "ETHUSD"},
			TickInterval:  duration{500 * time.Millisecond},
			SpreadBps:     2,
			VolatilityBps: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"stop_out", "account_breached"},
		},
		Mode:     "run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"sim":     true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, sim, archive)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres is required in every mode except sim, which runs on in-memory
	// stores.
	if c.Mode != "sim" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Mode == "run" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Mode == "archive" || (c.Mode == "run" && c.Archive.Enabled) {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Risk thresholds
	if c.Risk.MinInterval.Duration <= 0 {
		errs = append(errs, "risk: min_interval must be > 0")
	}
	if c.Risk.FeeRate < 0 {
		errs = append(errs, "risk: fee_rate must be >= 0")
	}
	if c.Risk.MarginCallLevel <= 0 {
		errs = append(errs, "risk: margin_call_level must be > 0")
	}
	if c.Risk.StopOutLevel <= 0 {
		errs = append(errs, "risk: stop_out_level must be > 0")
	}
	if c.Risk.StopOutLevel >= c.Risk.MarginCallLevel {
		errs = append(errs, "risk: stop_out_level must be below margin_call_level")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 1 {
		errs = append(errs, "risk: max_drawdown_pct must be in (0, 1)")
	}
	if c.Risk.DailyDrawdownPct <= 0 || c.Risk.DailyDrawdownPct >= 1 {
		errs = append(errs, "risk: daily_drawdown_pct must be in (0, 1)")
	}
	if c.Risk.AccountConcurrency < 1 {
		errs = append(errs, "risk: account_concurrency must be >= 1")
	}

	if c.Mode == "sim" {
		if len(c.Sim.Symbols) == 0 {
			errs = append(errs, "sim: symbols must not be empty")
		}
		if c.Sim.TickInterval.Duration <= 0 {
			errs = append(errs, "sim: tick_interval must be > 0")
		}
	}

	// Telegram fields must be set together.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
