package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type resizePayload struct {
	BoxID   uuid.UUID `json:"box_id"`
	NewTier string    `json:"new_tier"`
}

// handleResize moves a box to a new tier's compute envelope and updates
// the subscription record to match.
func handleResize(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p resizePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding resize payload: %w", err)
	}

	ns := nsFor(customerID)

	if err := o.Kube.PatchResourceQuota(ctx, ns, p.NewTier); err != nil {
		return err
	}
	if err := o.Kube.PatchDeploymentResources(ctx, ns, p.NewTier); err != nil {
		return err
	}
	if err := o.Kube.RolloutRestart(ctx, ns); err != nil {
		return err
	}

	complete, err := o.Kube.WaitForRollout(ctx, ns, rolloutTimeout)
	if err != nil {
		return err
	}
	if !complete {
		return fmt.Errorf("resize rollout not complete within %s for customer %s", rolloutTimeout, customerID)
	}

	custID, err := uuid.Parse(customerID)
	if err != nil {
		return fmt.Errorf("parsing customer id: %w", err)
	}

	q := store.New(o.Pool)
	box, err := q.GetBox(ctx, p.BoxID)
	if err != nil {
		return fmt.Errorf("loading box: %w", err)
	}
	if err := q.UpdateBoxTier(ctx, p.BoxID, p.NewTier); err != nil {
		return fmt.Errorf("recording box tier: %w", err)
	}
	if err := q.UpdateSubscriptionTier(ctx, box.SubscriptionID, p.NewTier); err != nil {
		return fmt.Errorf("recording subscription tier: %w", err)
	}

	period := time.Now().UTC().Format("2006-01")
	if err := q.UpsertUsageMonthlyLimit(ctx, custID, period, store.TokenLimitForTier(p.NewTier)); err != nil {
		return fmt.Errorf("updating usage_monthly limit: %w", err)
	}

	o.Logger.Info("resized box", "customer_id", customerID, "box_id", p.BoxID, "new_tier", p.NewTier)
	return nil
}
