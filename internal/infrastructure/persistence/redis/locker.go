package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB LOCKS
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out per-job locks shared by every worker process.
type Locker struct {
	client *Client
}

// NewLocker creates a Locker.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// TryLock acquires lock:job:<name> for ttl. ok is false when another process
// holds it. The returned release func is safe to call once.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	key := LockKey(name)
	token := uuid.NewString()

	ok, err = l.client.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client.rdb, []string{key}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if n == 0 {
			return ErrLockNotHeld
		}
		return nil
	}
	return release, true, nil
}
