package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockUnavailable: the per-resource lock could not be acquired within the
// bounded retries, or the lock provider was unreachable. Stock-affecting
// callers must reject the mutation, never proceed unlocked.
var ErrLockUnavailable = errors.New("lock unavailable")

// Compare-and-delete: only the holder of the token may release. A stale
// caller whose lease expired and was re-acquired by someone else is a no-op.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Lock is a short-lived, key-scoped mutual exclusion lease on redis.
type Lock struct {
	RDB     *redis.Client
	Retries int           // acquisition attempts beyond the first
	Backoff time.Duration // initial backoff, doubled per attempt
}

// Acquire takes the lease and returns an opaque token identifying ownership.
func (l *Lock) Acquire(ctx context.Context, key string, lease time.Duration) (string, error) {
	retries := l.Retries
	if retries <= 0 {
		retries = 5
	}
	backoff := l.Backoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.RDB.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			// fail safe: an unreachable provider rejects the mutation
			return "", fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			return token, nil
		}
		if attempt >= retries {
			return "", ErrLockUnavailable
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
		}
		backoff *= 2
	}
}

func (l *Lock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.RDB, []string{key}, token).Err()
}
