package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openclaw/cloud/internal/config"
	"github.com/openclaw/cloud/internal/k8s"
	"github.com/openclaw/cloud/internal/platform"
	"github.com/openclaw/cloud/internal/telemetry"
	"github.com/openclaw/cloud/pkg/orchestrator"
)

func main() {
	cfg, err := config.LoadOrchestrator()
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

	kube, err := k8s.New(cfg.KubeconfigPath)
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}

	reg := telemetry.NewRegistry(telemetry.OrchestratorCollectors()...)

	o := orchestrator.New(pool, rdb, kube, logger, orchestrator.Config{
		TokenProxyURL:     cfg.TokenProxyURL,
		BrowserProxyURL:   cfg.BrowserProxyURL,
		InternalAPIKey:    cfg.InternalAPIKey,
		OpenClawImage:     cfg.OpenClawImage,
		PodReadyTimeout:   time.Duration(cfg.PodReadyTimeout) * time.Second,
		HealthCheckPeriod: time.Duration(cfg.HealthCheckPeriod) * time.Second,
		UnhealthyAfter:    cfg.UnhealthyAfter,
	}, cfg.JobQueueKey)

	go serveHealth(ctx, logger, cfg.HealthPort, reg)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := o.Run(ctx); err != nil {
			logger.Error("orchestrator loop exited", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := o.RunHealthCheckLoop(ctx); err != nil {
			logger.Error("health check loop exited", "error", err)
		}
	}()
	wg.Wait()
}

// serveHealth exposes /healthz and /metrics on a plain mux — the
// orchestrator has no domain HTTP API of its own, just the process
// liveness and scrape endpoints every component carries.
func serveHealth(ctx context.Context, logger *slog.Logger, port int, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("health server exited", "error", err)
	}
}
