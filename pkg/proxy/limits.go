package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/store"
)

const (
	limitCachePrefix = "limit:"
	limitCacheTTL    = 60 * time.Second
)

// LimitResult is the outcome of a monthly usage-cap check.
type LimitResult struct {
	Allowed bool
	Warning bool
	Used    int64
	Limit   int64
}

type cachedLimit struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// checkLimits reports whether a customer is still within their monthly
// token allowance for the current billing period. Allowed is false, with
// zero Used and Limit and a nil error, when the usage_monthly lookup for an
// active subscription fails for any reason, a missing row included: the
// customer is blocked by default.
func (p *Proxy) checkLimits(ctx context.Context, customerID uuid.UUID) (LimitResult, error) {
	cacheKey := limitCachePrefix + customerID.String()

	cached, err := p.Redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var c cachedLimit
		if jsonErr := json.Unmarshal([]byte(cached), &c); jsonErr == nil {
			return limitResultFrom(c), nil
		}
	} else if !errors.Is(err, redis.Nil) {
		p.Logger.Warn("limit cache lookup failed", "error", err)
	}

	q := store.New(p.Pool)
	period := time.Now().UTC().Format("2006-01")
	usage, err := q.GetUsageMonthlyForActiveSubscription(ctx, customerID, period)
	if err != nil {
		return LimitResult{Allowed: false}, nil
	}

	c := cachedLimit{Used: usage.TokensUsed, Limit: usage.TokensLimit}
	body, err := json.Marshal(c)
	if err == nil {
		if err := p.Redis.Set(ctx, cacheKey, body, limitCacheTTL).Err(); err != nil {
			p.Logger.Warn("caching usage limit failed", "error", err)
		}
	}
	return limitResultFrom(c), nil
}

func limitResultFrom(c cachedLimit) LimitResult {
	return LimitResult{
		Allowed: c.Used < c.Limit,
		Warning: c.Limit > 0 && c.Used >= (c.Limit*9)/10,
		Used:    c.Used,
		Limit:   c.Limit,
	}
}
