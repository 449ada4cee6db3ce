// Package ratelimit implements the admission layer in front of the LLM
// client: an in-process token-bucket QPS/TPM Limiter (bucket.go) plus
// an optional Redis-backed distributed RPM guard (this file) that can
// be layered in front of it when the Gateway runs as more than one
// process sharing the same Redis instance.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript is an atomic Lua script that implements a sliding window
// rate limiter using a sorted set.
// KEYS[1] = Redis key
// ARGV[1] = current unix timestamp (nanoseconds as string)
// ARGV[2] = window size in nanoseconds
// ARGV[3] = limit (max requests per window)
// Returns: 1 if allowed, 0 if rate limited.
var slidingWindowScript = redis.NewScript(`
		local key    = KEYS[1]
		local now    = tonumber(ARGV[1])
		local window = tonumber(ARGV[2])
		local limit  = tonumber(ARGV[3])

		-- Remove expired entries.
		redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

		local count = redis.call('ZCARD', key)
		if count >= limit then
			return 0
		end

		-- Add current request with a unique member (now + random suffix).
		local member = tostring(now) .. tostring(math.random(1, 1000000))
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, math.ceil(window / 1000000))  -- window is in ns; PEXPIRE wants ms
		return 1
`)

// rateLimitKeyPrefix namespaces the sorted-set key by the provider name
// a request is bound for, so a fleet of gateway replicas sharing one
// Redis instance enforces one RPM budget per configured provider rather
// than one undivided global budget.
const rateLimitKeyPrefix = "agentreg:ratelimit:rpm:"

// RPMLimiter checks a per-provider requests-per-minute limit using a
// Redis sliding window, shared across every Gateway process pointed at
// the same Redis instance.
type RPMLimiter struct {
	rdb      *redis.Client
	rpmLimit int
}

// NewRPMLimiter creates a new RPMLimiter with the given global RPM limit.
// rpmLimit must be > 0; values ≤ 0 will block every request.
func NewRPMLimiter(rdb *redis.Client, rpmLimit int) *RPMLimiter {
	return &RPMLimiter{rdb: rdb, rpmLimit: rpmLimit}
}

// Allow returns true if a request bound for the given provider is
// within the rate limit. provider keys the sliding window so distinct
// providers (or the "" key, for a single-provider Gateway) never share
// a budget.
func (r *RPMLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	return r.check(ctx, rateLimitKeyPrefix+provider, r.rpmLimit)
}

func (r *RPMLimiter) check(ctx context.Context, key string, limit int) (bool, error) {
	now := time.Now().UnixNano()
	window := time.Minute.Nanoseconds()

	result, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{key},
		now, window, limit,
	).Int()
	if err != nil {
		// Redis unavailable — allow request (graceful degradation).
		return true, nil
	}

	return result == 1, nil
}
