// Package orchestrator drains the shared operator job queue and drives
// each customer's Kubernetes namespace through its lifecycle: provision,
// update, resize, suspend, reactivate, destroy, and a periodic health
// check. Every job is audited as a running -> complete|failed row;
// handler panics and errors never escape the dispatch loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/openclaw/cloud/internal/k8s"
	"github.com/openclaw/cloud/internal/queue"
	"github.com/openclaw/cloud/internal/store"
	"github.com/openclaw/cloud/internal/telemetry"
)

// Config carries the orchestrator's runtime settings, read once in main
// and passed down explicitly rather than held in package state.
type Config struct {
	TokenProxyURL     string
	BrowserProxyURL   string
	InternalAPIKey    string
	OpenClawImage     string
	PodReadyTimeout   time.Duration
	HealthCheckPeriod time.Duration
	UnhealthyAfter    int
}

// Handler processes one job's payload for one customer.
type Handler func(ctx context.Context, o *Orchestrator, customerID string, payload json.RawMessage) error

// Orchestrator holds the explicitly-constructed dependencies every handler
// needs. There is no package-level mutable state: callers build one of
// these in main and it flows down as a parameter, never a singleton.
type Orchestrator struct {
	Pool   *pgxpool.Pool
	Rdb    *redis.Client
	Kube   *k8s.Client
	Logger *slog.Logger
	Cfg    Config

	httpClient *http.Client
	consumer   *queue.Consumer
	handlers   map[string]Handler
}

func New(pool *pgxpool.Pool, rdb *redis.Client, kube *k8s.Client, logger *slog.Logger, cfg Config, jobQueueKey string) *Orchestrator {
	o := &Orchestrator{
		Pool:       pool,
		Rdb:        rdb,
		Kube:       kube,
		Logger:     logger,
		Cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		consumer:   queue.NewConsumer(rdb, jobQueueKey),
	}
	o.handlers = map[string]Handler{
		store.JobTypeProvision:         handleProvision,
		store.JobTypeUpdate:            handleUpdate,
		store.JobTypeUpdateConnections: handleUpdateConnections,
		store.JobTypeResize:            handleResize,
		store.JobTypeSuspend:           handleSuspend,
		store.JobTypeReactivate:        handleReactivate,
		store.JobTypeDestroy:           handleDestroy,
	}
	return o
}

// Run drains the job queue until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.Logger.Info("orchestrator started")

	for {
		select {
		case <-ctx.Done():
			o.Logger.Info("orchestrator stopped")
			return nil
		default:
		}

		env, err := o.consumer.Pop(ctx)
		if errors.Is(err, queue.ErrNoJob) {
			continue
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			o.Logger.Error("popping job", "error", err)
			time.Sleep(time.Second)
			continue
		}

		o.processJob(ctx, env)
	}
}

// processJob acquires the customer's lock, audits the attempt, and never
// lets a handler error escape — it is always turned into a failed audit
// row and logged.
func (o *Orchestrator) processJob(ctx context.Context, env queue.Envelope) {
	logger := o.Logger.With("job_type", env.Type, "customer_id", env.CustomerID, "job_id", env.JobID)

	handler, ok := o.handlers[env.Type]
	if !ok {
		logger.Error("unknown job type")
		return
	}

	lock, err := queue.AcquireLock(ctx, o.Rdb, env.CustomerID, 30*time.Second)
	if err != nil {
		logger.Error("could not acquire customer lock", "error", err)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("releasing lock", "error", err)
		}
	}()

	q := store.New(o.Pool)
	start := time.Now()

	if err := q.MarkJobRunning(ctx, env.JobID); err != nil {
		logger.Error("marking job running", "error", err)
		return
	}

	runErr := runHandler(ctx, handler, o, env.CustomerID.String(), env.Payload)

	telemetry.JobProcessingDuration.WithLabelValues(env.Type).Observe(time.Since(start).Seconds())

	if runErr != nil {
		logger.Error("job failed", "error", runErr)
		if err := q.MarkJobFailed(ctx, env.JobID, runErr.Error()); err != nil {
			logger.Error("recording job failure", "error", err)
		}
		telemetry.JobsProcessedTotal.WithLabelValues(env.Type, "failed").Inc()
		return
	}

	if err := q.MarkJobComplete(ctx, env.JobID); err != nil {
		logger.Error("recording job completion", "error", err)
	}
	telemetry.JobsProcessedTotal.WithLabelValues(env.Type, "complete").Inc()
	logger.Info("job completed")
}

// runHandler recovers a handler panic into an error so one malformed
// payload can never take down the dispatch loop.
func runHandler(ctx context.Context, h Handler, o *Orchestrator, customerID string, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, o, customerID, payload)
}
