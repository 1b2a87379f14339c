package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type updateConnectionsPayload struct {
	BoxID uuid.UUID `json:"box_id"`
}

// handleUpdateConnections rebuilds the OPENCLAW_CONNECTIONS secret from the
// customer's current connection rows and restarts the box to pick it up.
func handleUpdateConnections(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p updateConnectionsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding update_connections payload: %w", err)
	}

	custID, err := uuid.Parse(customerID)
	if err != nil {
		return fmt.Errorf("parsing customer id: %w", err)
	}

	q := store.New(o.Pool)
	conns, err := q.ListConnectionsByCustomer(ctx, custID)
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	envelope, err := json.Marshal(connectionsEnvelope(customerID, conns))
	if err != nil {
		return fmt.Errorf("encoding connections envelope: %w", err)
	}

	ns := nsFor(customerID)

	if err := o.Kube.PatchConfigSecret(ctx, ns, map[string]string{"OPENCLAW_CONNECTIONS": string(envelope)}); err != nil {
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

	o.Logger.Info("updated connections", "customer_id", customerID, "connection_count", len(conns))
	return nil
}
