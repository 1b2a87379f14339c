// Package proxy implements the metered LLM reverse proxy: it authenticates
// a customer's opaque bearer token, rate-limits and usage-caps the request,
// forwards it to the upstream model API (streaming or not), and meters the
// token usage back into the relational store via a Redis Streams consumer
// group.
package proxy

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/config"
)

// Proxy holds every dependency the request path and usage consumer need.
type Proxy struct {
	Pool   *pgxpool.Pool
	Redis  *redis.Client
	Logger *slog.Logger
	Cfg    *config.ProxyConfig

	httpClient *http.Client
}

func New(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, cfg *config.ProxyConfig) *Proxy {
	return &Proxy{
		Pool:   pool,
		Redis:  rdb,
		Logger: logger,
		Cfg:    cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}
