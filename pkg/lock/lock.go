package lock

import (
	"context"
	"errors"
	"fmt"
	"slotkeeper/pkg/config"
	"sort"
	"time"
)

var ErrLockContention = errors.New("lock contention: retries exhausted")

// Unlock releases a held lock. It is safe to call more than once.
type Unlock func()

type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

type Options struct {
	TTL           time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TTL:           cfg.LockTTL,
		RetryAttempts: cfg.LockRetryAttempts,
		RetryBackoff:  cfg.LockRetryBackoff,
	}
}

// maxWait is the total time a caller may spend waiting for one key.
func (o Options) maxWait() time.Duration {
	attempts := max(o.RetryAttempts, 1)
	return time.Duration(attempts*(attempts+1)/2) * o.RetryBackoff
}

// New builds the locker named by cfg.LockBackend.
func New(cfg *config.Config) (Locker, error) {
	opts := OptionsFromConfig(cfg)
	switch cfg.LockBackend {
	case config.LockBackendMemory:
		return NewMemoryLocker(opts), nil
	case config.LockBackendMongo:
		if cfg.Client.Mongo == nil {
			return nil, fmt.Errorf("mongo lock backend requires a mongo client")
		}
		return NewMongoLocker(cfg.Client.Mongo.Database(cfg.MongoDatabaseName), opts, cfg.Log), nil
	case config.LockBackendRedis:
		if cfg.Client.Redis == nil {
			return nil, fmt.Errorf("redis lock backend requires a redis client")
		}
		return NewRedisLocker(cfg.Client.Redis, opts, cfg.Log), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// AcquireAll takes every key in sorted order so that overlapping lock sets
// never deadlock. On failure the keys already taken are released.
func AcquireAll(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	held := make([]Unlock, 0, len(sorted))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, k := range sorted {
		unlock, err := l.Acquire(ctx, k)
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		held = append(held, unlock)
	}
	return releaseAll, nil
}

type tryLocker interface {
	tryAcquire(ctx context.Context, key, token string) (bool, error)
	release(ctx context.Context, key, token string) error
}

// acquireWithRetry polls a non-blocking backend with linear backoff.
func acquireWithRetry(ctx context.Context, b tryLocker, key, token string, opts Options) error {
	attempts := max(opts.RetryAttempts, 1)
	for i := 0; i < attempts; i++ {
		ok, err := b.tryAcquire(ctx, key, token)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * opts.RetryBackoff):
		}
	}
	return ErrLockContention
}
