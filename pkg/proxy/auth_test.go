package proxy

import (
	"context"
	"encoding/json"
	"testing"
)

func TestAuthenticateToken_CacheHit(t *testing.T) {
	p := newTestProxy(t)
	ctx := context.Background()

	want := tokenInfo{CustomerID: "cust-1", BoxID: "box-1"}
	body, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := p.Redis.Set(ctx, tokenCachePrefix+"raw-token", body, tokenCacheTTL).Err(); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}

	got, err := p.authenticateToken(ctx, "raw-token")
	if err != nil {
		t.Fatalf("authenticateToken: %v", err)
	}
	if got != want {
		t.Errorf("authenticateToken = %+v, want %+v", got, want)
	}
}
