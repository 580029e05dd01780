// Package locks provides the redis-backed per-tenant single-flight
// guard and the short-TTL counter cache.
package locks

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mailroom_server/core/port/out"
)

const lockKeyPrefix = "mailroom:run_lock:"

// releaseScript deletes the lock only when the stored token matches, so
// a run that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements out.TenantLocker on SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

var _ out.TenantLocker = (*RedisLocker)(nil)

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, tenantID uuid.UUID, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+tenantID.String(), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, tenantID uuid.UUID, token string) error {
	return releaseScript.Run(ctx, l.client, []string{lockKeyPrefix + tenantID.String()}, token).Err()
}

// RedisCounterCache implements out.CounterCache.
type RedisCounterCache struct {
	client *redis.Client
}

var _ out.CounterCache = (*RedisCounterCache)(nil)

func NewRedisCounterCache(client *redis.Client) *RedisCounterCache {
	return &RedisCounterCache{client: client}
}

func (c *RedisCounterCache) GetInt(ctx context.Context, key string) (int, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

func (c *RedisCounterCache) SetInt(ctx context.Context, key string, value int, ttl time.Duration) error {
	return c.client.Set(ctx, key, strconv.Itoa(value), ttl).Err()
}
