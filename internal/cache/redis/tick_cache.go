package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// TickCache implements domain.TickCache using Redis hashes.
// Each symbol's latest quote is stored as a hash under the client's
// namespace at "tick:{symbol}" with fields "bid", "ask", "last" and "ts"
// (Unix nanosecond timestamp).
type TickCache struct {
	c *Client
}

// NewTickCache creates a TickCache backed by the given Client.
func NewTickCache(c *Client) *TickCache {
	return &TickCache{c: c}
}

func (tc *TickCache) tickKey(symbol string) string {
	return tc.c.key("tick", symbol)
}

// SetTick stores the latest quote for a symbol.
func (tc *TickCache) SetTick(ctx context.Context, t domain.Tick) error {
	fields := map[string]interface{}{
		"bid":  t.Bid.String(),
		"ask":  t.Ask.String(),
		"last": t.Last.String(),
		"ts":   strconv.FormatInt(t.At.UnixNano(), 10),
	}
	if err := tc.c.rdb.HSet(ctx, tc.tickKey(t.Symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", t.Symbol, err)
	}
	return nil
}

// GetTick retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when no quote has been stored.
func (tc *TickCache) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	vals, err := tc.c.rdb.HGetAll(ctx, tc.tickKey(symbol)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}
	t, err := tickFromFields(symbol, vals)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	return t, nil
}

// GetTicks retrieves the latest quotes for multiple symbols using a pipeline.
// Symbols whose keys do not exist or fail to parse are silently omitted.
func (tc *TickCache) GetTicks(ctx context.Context, symbols []string) (map[string]domain.Tick, error) {
	if len(symbols) == 0 {
		return map[string]domain.Tick{}, nil
	}

	pipe := tc.c.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGetAll(ctx, tc.tickKey(sym))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get ticks pipeline: %w", err)
	}

	result := make(map[string]domain.Tick, len(symbols))
	for sym, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		t, err := tickFromFields(sym, vals)
		if err != nil {
			continue
		}
		result[sym] = t
	}
	return result, nil
}

func tickFromFields(symbol string, vals map[string]string) (domain.Tick, error) {
	bid, err := decimal.NewFromString(vals["bid"])
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse bid: %w", err)
	}
	ask, err := decimal.NewFromString(vals["ask"])
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse ask: %w", err)
	}
	last, err := decimal.NewFromString(vals["last"])
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse last: %w", err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Tick{}, fmt.Errorf("parse ts: %w", err)
	}
	return domain.Tick{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Last:   last,
		At:     time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.TickCache = (*TickCache)(nil)
