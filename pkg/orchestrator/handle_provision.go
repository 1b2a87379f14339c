package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclaw/cloud/internal/store"
)

type provisionPayload struct {
	BoxID             uuid.UUID `json:"box_id"`
	Tier              string    `json:"tier"`
	TelegramBotToken  string    `json:"telegram_bot_token"`
	TelegramAllowFrom string    `json:"telegram_allow_from"`
	Model             string    `json:"model"`
	Thinking          string    `json:"thinking"`
	Niche             string    `json:"niche"`
}

// handleProvision brings up a new customer box end to end: mints a proxy
// token, creates the namespace and its Secret/ResourceQuota/NetworkPolicy/
// Deployment, and waits for the pod to report ready before marking the box
// running.
func handleProvision(ctx context.Context, o *Orchestrator, customerID string, raw json.RawMessage) error {
	var p provisionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decoding provision payload: %w", err)
	}
	if p.Model == "" {
		p.Model = "kimi-coding/k2p5"
	}
	if p.Thinking == "" {
		p.Thinking = "medium"
	}

	tok, err := o.mintProxyToken(ctx, customerID, p.BoxID.String())
	if err != nil {
		return fmt.Errorf("minting proxy token: %w", err)
	}

	ns := nsFor(customerID)

	if err := o.Kube.EnsureNamespace(ctx, ns, customerID, p.Tier); err != nil {
		return err
	}

	systemPrompt := ""
	if niche, ok := store.NicheBySlug(p.Niche); ok {
		systemPrompt = niche.SystemPrompt
	}

	connections, err := json.Marshal(connectionsEnvelope(customerID, nil))
	if err != nil {
		return fmt.Errorf("encoding connections envelope: %w", err)
	}

	if err := o.Kube.EnsureConfigSecret(ctx, ns, secretParamsFor(o, p.TelegramBotToken, p.TelegramAllowFrom, tok.Token, p.Model, p.Thinking, systemPrompt, connections)); err != nil {
		return err
	}

	if err := o.Kube.EnsureResourceQuota(ctx, ns, p.Tier); err != nil {
		return err
	}

	if err := o.Kube.EnsureNetworkPolicy(ctx, ns); err != nil {
		return err
	}

	if err := o.Kube.EnsureDeployment(ctx, ns, customerID, p.Tier, o.Cfg.OpenClawImage); err != nil {
		return err
	}

	ready, err := o.Kube.WaitForPodReady(ctx, ns, o.Cfg.PodReadyTimeout)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("pod not ready within %s for customer %s", o.Cfg.PodReadyTimeout, customerID)
	}

	q := store.New(o.Pool)
	if err := q.UpdateBoxStatus(ctx, p.BoxID, store.BoxStatusRunning); err != nil {
		return fmt.Errorf("updating box status: %w", err)
	}

	o.Logger.Info("provisioned box", "customer_id", customerID, "box_id", p.BoxID)
	return nil
}
