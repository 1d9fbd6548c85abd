// Package lock provides a Redis-backed mutual exclusion lock used to keep
// two runs from working the same chamber at once.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrHeld is returned when the key is already locked.
var ErrHeld = eris.New("lock: held by another owner")

// releaseScript deletes the key only if it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of *redis.Client the locker uses.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker implements ingest.Locker with SET NX and a token-checked
// release.
type RedisLocker struct {
	client Client
	prefix string
}

// NewRedisLocker creates a locker. Keys are stored under prefix.
func NewRedisLocker(client Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// NewClient opens a go-redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrapf(err, "lock: ping redis %s", addr)
	}
	return rdb, nil
}

// Acquire takes the lock for ttl. The lock expires on its own if the owner
// dies without releasing it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	full := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "lock: acquire %s", full)
	}
	if !ok {
		return nil, eris.Wrapf(ErrHeld, "lock: acquire %s", full)
	}

	zap.L().Debug("lock acquired", zap.String("component", "lock"), zap.String("key", full), zap.Duration("ttl", ttl))

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{full}, token).Int64()
		if err != nil {
			return eris.Wrapf(err, "lock: release %s", full)
		}
		if n == 0 {
			zap.L().Warn("lock expired before release", zap.String("component", "lock"), zap.String("key", full))
		}
		return nil
	}
	return release, nil
}
