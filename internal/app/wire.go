package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/Pablo69latrick/teda-clone-sub002/internal/blob/s3"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/cache/redis"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/config"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/notify"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/risk"
	"github.com/Pablo69latrick/teda-clone-sub002/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	Positions domain.PositionStore
	Orders    domain.OrderStore
	Accounts  domain.AccountStore
	Activity  domain.ActivityStore
	Equity    domain.EquityStore

	// Caches
	TickCache   domain.TickCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
// Sim mode runs entirely on in-memory stores.
func needsPostgres(mode string) bool {
	return mode == "run" || mode == "archive"
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "run"
}

// needsS3 returns true when object storage must be wired.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || (cfg.Mode == "run" && cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Accounts = postgres.NewAccountStore(pool)
		deps.Activity = postgres.NewActivityStore(pool)
		deps.Equity = postgres.NewEquityStore(pool)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.TickCache = redis.NewTickCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.Options{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.Activity != nil && deps.Equity != nil {
			deps.Archiver = s3blob.NewArchiver(writer, deps.Activity, deps.Equity)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// riskConfig converts the TOML risk section into the engine's configuration.
func riskConfig(cfg config.RiskConfig) risk.Config {
	return risk.Config{
		MinInterval:        cfg.MinInterval.Duration,
		FeeRate:            decimal.NewFromFloat(cfg.FeeRate),
		MarginCallLevel:    decimal.NewFromFloat(cfg.MarginCallLevel),
		StopOutLevel:       decimal.NewFromFloat(cfg.StopOutLevel),
		MaxDrawdownPct:     decimal.NewFromFloat(cfg.MaxDrawdownPct),
		DailyDrawdownPct:   decimal.NewFromFloat(cfg.DailyDrawdownPct),
		PassLockTTL:        cfg.PassLockTTL.Duration,
		AccountConcurrency: cfg.AccountConcurrency,
	}
}
