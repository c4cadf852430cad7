package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"go.uber.org/zap"
)

// ErrNotObtained the key stayed locked for the whole retry window
var ErrNotObtained = errors.New("lock not obtained")

// RedisLocker distributed lock on redislock. Keys expire after ttl so a crashed
// holder cannot block a key forever.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	retries int
	prefix  string
	logger  *zap.Logger
}

type RedisOption func(*RedisLocker)

// WithRetry retries a busy key every backoff, at most retries times.
func WithRetry(backoff time.Duration, retries int) RedisOption {
	return func(l *RedisLocker) {
		l.backoff = backoff
		l.retries = retries
	}
}

func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

func NewRedisLocker(client redislock.RedisClient, ttl time.Duration, logger *zap.Logger, opts ...RedisOption) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &RedisLocker{
		client:  redislock.New(client),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		retries: 40,
		prefix:  "mes:lock:",
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := l.prefix + key
	lk, err := l.client.Obtain(ctx, lockKey, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	} else if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() {
		// a background context so a cancelled request still frees the key
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}
