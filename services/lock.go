package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RunLocker schließt parallele Läufe gegen denselben Bucket/Prefix aus.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// NoopLocker sperrt nichts. Für Einzelinstallationen ohne Redis.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// RedisRunLocker nutzt einen redislock als Advisory Lock.
type RedisRunLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisRunLocker erstellt den Locker auf einem bestehenden Redis-Client.
func NewRedisRunLocker(rdb *redis.Client, ttl time.Duration) *RedisRunLocker {
	return &RedisRunLocker{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisRunLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}
