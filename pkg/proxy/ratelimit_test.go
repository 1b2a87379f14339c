package proxy

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/config"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return &Proxy{
		Redis:  rdb,
		Logger: slog.Default(),
		Cfg: &config.ProxyConfig{
			RateLimitCapacity:     3,
			RateLimitRefillPerSec: 1,
		},
	}
}

func TestCheckRateLimit_AllowsUpToCapacity(t *testing.T) {
	p := newTestProxy(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := p.checkRateLimit(ctx, "customer-1")
		if err != nil {
			t.Fatalf("checkRateLimit: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d: expected allowed, got denied", i)
		}
	}

	allowed, err := p.checkRateLimit(ctx, "customer-1")
	if err != nil {
		t.Fatalf("checkRateLimit: %v", err)
	}
	if allowed {
		t.Error("expected the 4th request beyond capacity to be denied")
	}
}

func TestCheckRateLimit_IsolatedPerCustomer(t *testing.T) {
	p := newTestProxy(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.checkRateLimit(ctx, "customer-1"); err != nil {
			t.Fatalf("checkRateLimit: %v", err)
		}
	}

	allowed, err := p.checkRateLimit(ctx, "customer-2")
	if err != nil {
		t.Fatalf("checkRateLimit: %v", err)
	}
	if !allowed {
		t.Error("expected a different customer's bucket to be unaffected")
	}
}
