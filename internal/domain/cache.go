package domain

import (
	"context"
	"time"
)

// TickCache provides fast access to the latest normalized quote per symbol.
type TickCache interface {
	SetTick(ctx context.Context, t Tick) error
	// GetTick returns ErrNotFound when no quote has been seen for the symbol.
	GetTick(ctx context.Context, symbol string) (Tick, error)
	// GetTicks returns the latest quotes for the given symbols; symbols with
	// no quote are silently omitted from the result map.
	GetTicks(ctx context.Context, symbols []string) (map[string]Tick, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	// Acquire obtains the lock and returns an unlock function, or ErrLockHeld
	// when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub messaging between the tick source, the engine,
// and downstream consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads that is closed when the
	// context is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
