package lock

import (
	"context"
	"slotkeeper/pkg/logger"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisLockPrefix = "slotkeeper:lock:"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	opts   Options
	log    *logger.Logger
}

func NewRedisLocker(client *redis.Client, opts Options, log *logger.Logger) *RedisLocker {
	return &RedisLocker{client: client, opts: opts, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	if err := acquireWithRetry(ctx, l, key, token, l.opts); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := l.release(releaseCtx, key, token); err != nil {
				l.log.Warn("Failed to release redis lock", "lock_key", key, "error", err)
			}
		})
	}, nil
}

func (l *RedisLocker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	return l.client.SetNX(ctx, redisLockPrefix+key, token, l.opts.TTL).Result()
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, l.client, []string{redisLockPrefix + key}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
