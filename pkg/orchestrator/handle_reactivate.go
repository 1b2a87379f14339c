package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type reactivatePayload struct {
	BoxID uuid.UUID `json:"box_id"`
}

// handleReactivate scales a suspended box's Deployment back to one
// replica.
func handleReactivate(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p reactivatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding reactivate payload: %w", err)
	}

	if err := o.Kube.ScaleDeployment(ctx, nsFor(customerID), 1); err != nil {
		return err
	}

	q := store.New(o.Pool)
	if err := q.UpdateBoxStatus(ctx, p.BoxID, store.BoxStatusRunning); err != nil {
		return fmt.Errorf("recording box reactivation: %w", err)
	}

	o.Logger.Info("reactivated box", "customer_id", customerID, "box_id", p.BoxID)
	return nil
}
