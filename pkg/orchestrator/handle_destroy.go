package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type destroyPayload struct {
	BoxID        uuid.UUID `json:"box_id"`
	ProxyTokenID string    `json:"proxy_token_id"`
}

// handleDestroy tears down a customer's namespace and revokes their proxy
// token. Destroyed is terminal: once this completes, the box never
// transitions to any other status.
func handleDestroy(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p destroyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding destroy payload: %w", err)
	}

	if err := o.Kube.DeleteNamespace(ctx, nsFor(customerID)); err != nil {
		return err
	}

	if p.ProxyTokenID != "" {
		if err := o.revokeProxyToken(ctx, p.ProxyTokenID); err != nil {
			return fmt.Errorf("revoking proxy token: %w", err)
		}
		o.Logger.Info("revoked proxy token", "token_id", p.ProxyTokenID)
	}

	q := store.New(o.Pool)
	if err := q.UpdateBoxStatus(ctx, p.BoxID, store.BoxStatusDestroyed); err != nil {
		return fmt.Errorf("recording box destruction: %w", err)
	}
	if err := q.RevokeProxyTokensForBox(ctx, p.BoxID); err != nil {
		return fmt.Errorf("revoking remaining proxy tokens: %w", err)
	}

	o.Logger.Info("destroyed box", "customer_id", customerID, "box_id", p.BoxID)
	return nil
}
