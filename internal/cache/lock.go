package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another process")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock is a single-holder lease on a Redis key.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock takes the lease on key for ttl, or returns ErrLockHeld.
func AcquireLock(ctx context.Context, c *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	if c == nil {
		return nil, errors.New("redis client is not configured")
	}
	token := uuid.NewString()
	ok, err := c.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Token returns the value stored under the lock key.
func (l *Lock) Token() string {
	return l.token
}

// Release gives the lease back. Releasing an expired or stolen lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
