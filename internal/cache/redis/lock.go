package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// releaseLua deletes a lock key only when its value still carries the
// holder's token, so a holder whose TTL expired cannot release a lock that
// has since been re-acquired by another instance.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// releaseTimeout bounds the unlock round-trip. Release runs on a background
// context because the evaluation pass that took the lock may already be
// cancelled when it lets go.
const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SET NX plus a TTL. The TTL
// is the safety net: if a daemon instance dies mid-pass, the lock key
// expires and another instance picks up the next tick.
type LockManager struct {
	c       *Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:       c,
		release: redis.NewScript(releaseLua),
	}
}

// Acquire attempts to obtain the named lock for ttl. On success it returns a
// release function that is safe to call more than once; concurrent calls
// release at most one time.
//
// It returns domain.ErrLockHeld when another holder owns the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lm.c.key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = lm.release.Run(releaseCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}

	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
