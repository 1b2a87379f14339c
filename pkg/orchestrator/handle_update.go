package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type updatePayload struct {
	BoxID      uuid.UUID         `json:"box_id"`
	SecretData map[string]string `json:"secret_data"`
}

// handleUpdate patches the box's config Secret and triggers a rolling
// restart to pick it up.
func handleUpdate(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p updatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding update payload: %w", err)
	}

	ns := nsFor(customerID)

	if err := o.Kube.PatchConfigSecret(ctx, ns, p.SecretData); err != nil {
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
		return fmt.Errorf("rollout not complete within %s for customer %s", rolloutTimeout, customerID)
	}

	q := store.New(o.Pool)
	if err := q.UpdateBoxStatus(ctx, p.BoxID, store.BoxStatusRunning); err != nil {
		return fmt.Errorf("recording box update: %w", err)
	}

	o.Logger.Info("updated box", "customer_id", customerID, "box_id", p.BoxID)
	return nil
}
