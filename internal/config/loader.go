package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RISKD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RISKD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Postgres
	setStr(&cfg.Postgres.DSN, "RISKD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RISKD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RISKD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RISKD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RISKD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RISKD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RISKD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RISKD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RISKD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RISKD_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "RISKD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RISKD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RISKD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RISKD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RISKD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RISKD_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "RISKD_REDIS_KEY_PREFIX")

	// S3
	setStr(&cfg.S3.Endpoint, "RISKD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RISKD_S3_REGION")
	setStr(&cfg.S3.Bucket, "RISKD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RISKD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RISKD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RISKD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RISKD_S3_FORCE_PATH_STYLE")

	// Risk
	setDuration(&cfg.Risk.MinInterval, "RISKD_RISK_MIN_INTERVAL")
	setFloat64(&cfg.Risk.FeeRate, "RISKD_RISK_FEE_RATE")
	setFloat64(&cfg.Risk.MarginCallLevel, "RISKD_RISK_MARGIN_CALL_LEVEL")
	setFloat64(&cfg.Risk.StopOutLevel, "RISKD_RISK_STOP_OUT_LEVEL")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "RISKD_RISK_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Risk.DailyDrawdownPct, "RISKD_RISK_DAILY_DRAWDOWN_PCT")
	setDuration(&cfg.Risk.PassLockTTL, "RISKD_RISK_PASS_LOCK_TTL")
	setInt(&cfg.Risk.AccountConcurrency, "RISKD_RISK_ACCOUNT_CONCURRENCY")

	// Archive
	setBool(&cfg.Archive.Enabled, "RISKD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "RISKD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "RISKD_ARCHIVE_RETENTION_DAYS")

	// Sim
	setStringSlice(&cfg.Sim.Symbols, "RISKD_SIM_SYMBOLS")
	setDuration(&cfg.Sim.TickInterval, "RISKD_SIM_TICK_INTERVAL")
	setFloat64(&cfg.Sim.SpreadBps, "RISKD_SIM_SPREAD_BPS")
	setFloat64(&cfg.Sim.VolatilityBps, "RISKD_SIM_VOLATILITY_BPS")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "RISKD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RISKD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RISKD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RISKD_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "RISKD_MODE")
	setStr(&cfg.LogLevel, "RISKD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
