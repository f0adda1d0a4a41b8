package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = 200 * time.Millisecond
)

// RedisLocker holds keys with SET NX plus an owner token. The TTL bounds how
// long a crashed holder can block others; holders must finish within it.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("lock client not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(releaseScript),
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (l *RedisLocker) key(key string) string {
	if l.prefix == "" {
		return "lock:" + key
	}
	return l.prefix + ":lock:" + key
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(key), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.key(key)}, token).Err()
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	backoff := minBackoff
	for {
		token, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// release on a fresh context so a cancelled caller still frees the key
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := l.Release(releaseCtx, key, token); err != nil {
					l.logger.Warn("failed to release lock", "key", key, "error", err)
				}
			}, nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
