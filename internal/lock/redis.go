package lock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/cache"
	"github.com/fekuna/omnipos-stock-service/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keyPrefix = "lock:stock:"

type RedisConfig struct {
	TTL        time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// RedisLocker holds one SET NX key per stock item so several service instances serialize on
// the same items.
type RedisLocker struct {
	cache  *cache.RedisClient
	cfg    RedisConfig
	logger logger.ZapLogger
}

func NewRedisLocker(c *cache.RedisClient, cfg RedisConfig, log logger.ZapLogger) *RedisLocker {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 50
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 20 * time.Millisecond
	}
	return &RedisLocker{cache: c, cfg: cfg, logger: log}
}

func (l *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = normalize(keys)
	token := uuid.New().String()
	held := make([]string, 0, len(keys))

	release := func() {
		// Release with a fresh context so a cancelled request still frees its keys.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := l.cache.ReleaseLock(rctx, keyPrefix+held[i], token); err != nil {
				l.logger.Error("failed to release stock lock", zap.String("key", held[i]), zap.Error(err))
			}
		}
	}

	for _, k := range keys {
		if err := l.acquire(ctx, keyPrefix+k, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}
	return release, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	for i := 0; i < l.cfg.Attempts; i++ {
		ok, err := l.cache.AcquireLock(ctx, key, token, l.cfg.TTL)
		if err != nil {
			l.logger.Error("failed to acquire lock redis error", zap.String("key", key), zap.Error(err))
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryDelay):
		}
	}
	return ErrLockTimeout
}
