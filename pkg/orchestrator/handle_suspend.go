package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type suspendPayload struct {
	BoxID uuid.UUID `json:"box_id"`
}

// handleSuspend scales a box's Deployment to zero replicas, the cheapest
// way to stop billing a customer's compute without tearing down their
// namespace.
func handleSuspend(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p suspendPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding suspend payload: %w", err)
	}

	if err := o.Kube.ScaleDeployment(ctx, nsFor(customerID), 0); err != nil {
		return err
	}

	q := store.New(o.Pool)
	if err := q.UpdateBoxStatus(ctx, p.BoxID, store.BoxStatusSuspended); err != nil {
		return fmt.Errorf("recording box suspension: %w", err)
	}

	o.Logger.Info("suspended box", "customer_id", customerID, "box_id", p.BoxID)
	return nil
}
