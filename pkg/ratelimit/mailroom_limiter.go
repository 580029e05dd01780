// Package ratelimit implements a Redis-backed sliding window limiter.
// Without Redis the limiter fails open: ingestion endpoints stay usable
// on a degraded deployment.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlidingWindowLimiter counts requests per key over a rolling window.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	rate   int
	burst  int
	window time.Duration
}

func NewSlidingWindowLimiter(redisClient *redis.Client, ratePerWindow, burst int, window time.Duration) *SlidingWindowLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindowLimiter{
		redis:  redisClient,
		rate:   ratePerWindow,
		burst:  burst,
		window: window,
	}
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local max_requests = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count < max_requests then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('PEXPIRE', key, window_ms * 2)
		return 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if #oldest > 0 then
		return -(oldest[2] + window_ms - now)
	end
	return 0
`)

// Allow reports whether the request fits in the window; when it does
// not, the returned duration says how long to back off.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if l.redis == nil {
		return true, 0
	}

	now := time.Now()
	redisKey := fmt.Sprintf("mailroom:ratelimit:%s", key)

	result, err := slidingWindowScript.Run(ctx, l.redis, []string{redisKey},
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.rate+l.burst,
		l.window.Milliseconds(),
	).Int64()
	if err != nil {
		// fail open on Redis errors
		return true, 0
	}

	if result == 1 {
		return true, 0
	}
	if result < 0 {
		return false, time.Duration(-result) * time.Millisecond
	}
	return false, l.window
}
