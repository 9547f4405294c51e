package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

const idempotencyKeyPrefix = "idem:"

type RedisAdapter struct {
	client         *redis.Client
	locker         *redislock.Client
	idempotencyTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, idempotencyTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:         client,
		locker:         redislock.New(client),
		idempotencyTTL: idempotencyTTL,
	}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

type redisLock struct {
	lock *redislock.Lock
}

func (l redisLock) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// Obtain makes a single attempt; a held lock means someone else is doing the work.
func (r *RedisAdapter) Obtain(ctx context.Context, key string, ttl time.Duration) (port.Lock, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return redisLock{lock: lock}, nil
}
