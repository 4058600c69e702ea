// Package redis implements domain cache interfaces using go-redis/v9.
// All keys the daemon writes live under a configurable namespace (default
// "riskd") so the cache can share a Redis instance with the trading stack
// that feeds it.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pool defaults tuned for the evaluation loop: a handful of connections is
// enough because the engine reads quotes in pipelined batches, and idle
// connections are kept warm so a tick burst does not pay dial latency.
const (
	defaultPoolSize     = 8
	defaultMinIdleConns = 2
	defaultMaxRetries   = 3
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
)

// Options holds connection parameters for the Redis client.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int // defaults to 8
	MaxRetries int // defaults to 3
	TLSEnabled bool

	// KeyPrefix namespaces every key written by this process. Defaults to
	// "riskd". Pub/Sub channel names are not prefixed; they are a shared
	// contract with the feed.
	KeyPrefix string
}

// Client wraps a go-redis Client together with the daemon's key namespace.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// New dials Redis with the daemon's pool defaults, pings it to verify
// connectivity, and returns the wrapper.
func New(ctx context.Context, opts Options) (*Client, error) {
	ro := &redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MaxRetries:   opts.MaxRetries,
		MinIdleConns: defaultMinIdleConns,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
	}
	if ro.PoolSize <= 0 {
		ro.PoolSize = defaultPoolSize
	}
	if ro.MaxRetries <= 0 {
		ro.MaxRetries = defaultMaxRetries
	}
	if opts.TLSEnabled {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}

	prefix := strings.TrimSuffix(opts.KeyPrefix, ":")
	if prefix == "" {
		prefix = "riskd"
	}

	return &Client{rdb: rdb, prefix: prefix}, nil
}

// key builds a namespaced key, e.g. key("tick", "BTCUSD") -> "riskd:tick:BTCUSD".
func (c *Client) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
