// Package lock provides a Redis-backed implementation of stocktake.Locker.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"inventario/internal/core/apperror"
	"inventario/pkg/logger"
)

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 2 * time.Minute

type releaseFunc func(ctx context.Context) error

type obtainFunc func(ctx context.Context, key string, ttl time.Duration) (releaseFunc, error)

// RedisLocker serializes work per key across service instances.
type RedisLocker struct {
	obtain obtainFunc
	ttl    time.Duration
}

// NewRedisLocker creates a locker over client. A non-positive ttl uses DefaultTTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	locker := redislock.New(client)
	return newLocker(func(ctx context.Context, key string, ttl time.Duration) (releaseFunc, error) {
		l, err := locker.Obtain(ctx, key, ttl, nil)
		if err != nil {
			return nil, err
		}
		return l.Release, nil
	}, ttl)
}

func newLocker(obtain obtainFunc, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{obtain: obtain, ttl: ttl}
}

// WithLock runs fn while holding key. It fails fast with a LOCKED error when
// another holder has the key.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	release, err := l.obtain(ctx, key, l.ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		return apperror.NewLocked(key)
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}

	defer func() {
		// The request context may already be cancelled here.
		if err := release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release lock", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}
