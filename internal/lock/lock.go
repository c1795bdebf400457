// Package lock provides the per-invoice reconciliation lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"invoice-reconciler/internal/core"
)

const releaseTimeout = 5 * time.Second

// RedisLocker obtains short-lived Redis locks via redislock. A lock expires after ttl if
// its holder dies before releasing it.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisLocker returns a core.Locker backed by rdb.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%s: %w", key, core.ErrLockNotObtained)
		}
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// NoopLocker always succeeds. It is used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

var (
	_ core.Locker = (*RedisLocker)(nil)
	_ core.Locker = NoopLocker{}
)
