// Package ratelimit throttles order placement per user with a Redis sliding
// window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	RequestsPerWindow int
	WindowSize        time.Duration
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// slidingWindowScript trims entries older than the window, then admits the
// request if fewer than limit remain. Returns {allowed, remaining, retry_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_size_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		local counter = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. counter)
		redis.call('PEXPIRE', key, window_size_ms)
		redis.call('PEXPIRE', counter_key, window_size_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_size_ms - now
	end
	return {0, 0, retry_after}
`)

type SlidingWindowLimiter struct {
	client redis.Scripter
	config Config
	prefix string
}

func NewSlidingWindowLimiter(client redis.Scripter, config Config, prefix string) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		client: client,
		config: config,
		prefix: prefix,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := time.Now()
	redisKey := l.prefix + key

	result, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey, redisKey + ":counter"},
		now.UnixMilli(),
		now.Add(-l.config.WindowSize).UnixMilli(),
		l.config.RequestsPerWindow,
		l.config.WindowSize.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result length: %d", len(result))
	}

	res := &Result{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   now.Add(l.config.WindowSize),
	}
	if !res.Allowed && result[2] > 0 {
		res.RetryAfter = time.Duration(result[2]) * time.Millisecond
	}

	return res, nil
}

// Unlimited admits everything; used when Redis is not configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true, Remaining: -1}, nil
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
