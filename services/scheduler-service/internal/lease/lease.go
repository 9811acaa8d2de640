// Package lease keeps reminder runs on several scheduler replicas from
// overlapping. Overlap is safe, since reminders are marked conditionally, but it
// wastes sends, so a short Redis lease lets one replica run at a time.
package lease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld means another holder owns the lease.
var ErrHeld = errors.New("lease held by another instance")

type Locker interface {
	// Acquire takes the lease for ttl. The returned release func gives it back
	// if it is still ours.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "apptbook:lease"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive")
	}
	key := l.prefix + ":" + name
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}

// Noop always grants the lease. It is used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
