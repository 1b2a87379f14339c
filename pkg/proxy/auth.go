package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/openclaw/cloud/internal/store"
)

const (
	tokenCachePrefix = "proxy_token:"
	tokenCacheTTL    = 5 * time.Minute
)

// ErrInvalidToken is returned when no active proxy token matches the
// presented bearer credential.
var ErrInvalidToken = errors.New("proxy: invalid token")

type tokenInfo struct {
	CustomerID string `json:"customer_id"`
	BoxID      string `json:"box_id"`
}

// authenticateToken resolves a bearer token to a customer/box pair. A
// Redis-cached hit short-circuits the lookup; otherwise every active proxy
// token's bcrypt hash is checked against the presented token — an O(N) scan
// over active tokens, acceptable at this system's expected token count and
// made cheap in the common case by the cache.
func (p *Proxy) authenticateToken(ctx context.Context, token string) (tokenInfo, error) {
	cacheKey := tokenCachePrefix + token

	cached, err := p.Redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var info tokenInfo
		if jsonErr := json.Unmarshal([]byte(cached), &info); jsonErr == nil {
			return info, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		p.Logger.Warn("token cache lookup failed", "error", err)
	}

	q := store.New(p.Pool)
	tokens, err := q.ListActiveProxyTokens(ctx)
	if err != nil {
		return tokenInfo{}, fmt.Errorf("listing active proxy tokens: %w", err)
	}

	for _, t := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.TokenHash), []byte(token)) == nil {
			info := tokenInfo{CustomerID: t.CustomerID.String(), BoxID: t.BoxID.String()}
			body, err := json.Marshal(info)
			if err == nil {
				if err := p.Redis.Set(ctx, cacheKey, body, tokenCacheTTL).Err(); err != nil {
					p.Logger.Warn("caching token info failed", "error", err)
				}
			}
			return info, nil
		}
	}

	return tokenInfo{}, ErrInvalidToken
}
