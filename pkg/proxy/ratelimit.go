package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript implements a token bucket in Redis: the bucket's token
// count and last-refill time live in a hash so concurrent requests against
// the same customer serialize through a single atomic EVAL rather than a
// read-modify-write race.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local refill_rate = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(bucket[1])
local last = tonumber(bucket[2])

if tokens == nil then
    tokens = capacity
    last = now
end

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * refill_rate)

if tokens < 1 then
    return 0
end

tokens = tokens - 1
redis.call('HMSET', key, 'tokens', tokens, 'last', now)
redis.call('EXPIRE', key, 10)
return 1
`)

// checkRateLimit reports whether customerID may make one more request right
// now, consuming a token from its bucket if so.
func (p *Proxy) checkRateLimit(ctx context.Context, customerID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", customerID)
	now := float64(time.Now().UnixNano()) / 1e9

	res, err := rateLimitScript.Run(ctx, p.Redis, []string{key},
		p.Cfg.RateLimitCapacity, now, p.Cfg.RateLimitRefillPerSec).Int()
	if err != nil {
		return false, fmt.Errorf("evaluating rate limit script: %w", err)
	}
	return res == 1, nil
}
