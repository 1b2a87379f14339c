package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/cloud/internal/store"
	"github.com/openclaw/cloud/internal/telemetry"
)

// RunHealthCheckLoop polls every active box's ready replica count on a
// fixed interval and transitions a box to unhealthy once it has failed to
// report a ready replica for UnhealthyAfter consecutive polls. It does not
// enqueue any follow-up job itself — deciding whether to suspend or
// destroy an unhealthy box is left to the billing/API layer that owns
// that policy.
func (o *Orchestrator) RunHealthCheckLoop(ctx context.Context) error {
	period := o.Cfg.HealthCheckPeriod
	if period <= 0 {
		period = time.Minute
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	o.Logger.Info("health check loop started", "period", period)

	for {
		select {
		case <-ctx.Done():
			o.Logger.Info("health check loop stopped")
			return nil
		case <-ticker.C:
			if err := o.healthCheckTick(ctx); err != nil {
				o.Logger.Error("health check tick", "error", err)
			}
		}
	}
}

func (o *Orchestrator) healthCheckTick(ctx context.Context) error {
	q := store.New(o.Pool)
	boxes, err := q.ListActiveBoxes(ctx)
	if err != nil {
		return fmt.Errorf("listing active boxes: %w", err)
	}

	for _, box := range boxes {
		if err := o.healthCheckBox(ctx, q, box); err != nil {
			o.Logger.Error("health check box", "box_id", box.ID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) healthCheckBox(ctx context.Context, q *store.Queries, box store.Box) error {
	ns := nsFor(box.CustomerID.String())

	ready, err := o.Kube.ReadyReplicas(ctx, ns)
	if err != nil {
		return fmt.Errorf("reading ready replicas: %w", err)
	}

	if ready > 0 {
		if box.HealthFailures != 0 {
			return q.SetBoxHealthFailures(ctx, box.ID, 0)
		}
		return nil
	}

	telemetry.BoxesHealthFailures.Inc()
	failures := box.HealthFailures + 1
	if err := q.SetBoxHealthFailures(ctx, box.ID, failures); err != nil {
		return fmt.Errorf("recording health failure: %w", err)
	}

	if failures >= o.Cfg.UnhealthyAfter && box.Status != store.BoxStatusUnhealthy {
		if err := q.UpdateBoxStatus(ctx, box.ID, store.BoxStatusUnhealthy); err != nil {
			return fmt.Errorf("marking box unhealthy: %w", err)
		}
		o.Logger.Warn("box marked unhealthy", "box_id", box.ID, "customer_id", box.CustomerID, "failures", failures)
	}
	return nil
}
