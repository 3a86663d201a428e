// Package lane keeps the per-cron lease that allows one drain cycle per lane.
package lane

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld - the lease belongs to another token or has expired
var ErrNotHeld = errors.New("lane lease not held")

// Leaser - per-lane lease, held by one caller-supplied token at a time
type Leaser interface {
	// Acquire reports false when another token holds the lane.
	Acquire(ctx context.Context, cron, token string) (bool, error)
	// Refresh extends the lease; ErrNotHeld when token lost it.
	Refresh(ctx context.Context, cron, token string) error
	// Release drops the lease; ErrNotHeld when token lost it.
	Release(ctx context.Context, cron, token string) error
	Active(ctx context.Context, cron string) (bool, error)
}

// Key returns the lease key of a lane.
func Key(cron string) string { return "packer:{" + cron + "}:lane" }

var refreshScript = redis.NewScript(
	// language=Lua
	`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
	`,
)

var releaseScript = redis.NewScript(
	// language=Lua
	`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
	`,
)

// RedisLeaser - lease stored as a token value with a TTL, so a drainer that
// died mid-lane frees the lane once the TTL runs out.
type RedisLeaser struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewRedisLeaser - ...
func NewRedisLeaser(rdb redis.UniversalClient, ttl time.Duration) *RedisLeaser {
	return &RedisLeaser{rdb: rdb, ttl: ttl}
}

// Acquire - ...
func (l *RedisLeaser) Acquire(ctx context.Context, cron, token string) (bool, error) {
	return l.rdb.SetNX(ctx, Key(cron), token, l.ttl).Result()
}

// Refresh - ...
func (l *RedisLeaser) Refresh(ctx context.Context, cron, token string) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{Key(cron)}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release - ...
func (l *RedisLeaser) Release(ctx context.Context, cron, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{Key(cron)}, token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Active - ...
func (l *RedisLeaser) Active(ctx context.Context, cron string) (bool, error) {
	n, err := l.rdb.Exists(ctx, Key(cron)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
