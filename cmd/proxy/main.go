package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/openclaw/cloud/internal/config"
	"github.com/openclaw/cloud/internal/httpserver"
	"github.com/openclaw/cloud/internal/platform"
	"github.com/openclaw/cloud/internal/telemetry"
	"github.com/openclaw/cloud/pkg/proxy"
)

func main() {
	cfg, err := config.LoadProxy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := telemetry.NewRegistry(telemetry.ProxyCollectors()...)

	p := proxy.New(pool, rdb, logger, cfg)
	base := httpserver.NewServer(logger, pool, rdb, reg, nil)
	proxy.NewServer(base, p)

	srv := &http.Server{Addr: cfg.ListenAddr(), Handler: base.Router}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.RunUsageConsumer(ctx); err != nil {
			logger.Error("usage consumer exited", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metered proxy listening", "addr", cfg.ListenAddr())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	wg.Wait()
}
