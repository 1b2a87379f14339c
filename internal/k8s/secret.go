package k8s

import (
	"context"
	"encoding/json"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
)

const configSecretName = "openclaw-config"

// ConfigSecretParams carries the gateway's runtime configuration, injected
// into the box's Deployment via envFrom.
type ConfigSecretParams struct {
	TelegramBotToken  string
	TelegramAllowFrom string
	ProxyToken        string
	TokenProxyURL     string
	Model             string
	Thinking          string
	SystemPrompt      string
	BrowserProxyURL   string
	ConnectionsJSON   json.RawMessage
}

func (p ConfigSecretParams) toStringData() map[string]string {
	data := map[string]string{
		"TELEGRAM_BOT_TOKEN":        p.TelegramBotToken,
		"TELEGRAM_ALLOW_FROM":       p.TelegramAllowFrom,
		"KIMI_API_KEY":              p.ProxyToken,
		"KIMI_BASE_URL":             p.TokenProxyURL + "/v1",
		"OPENCLAW_MODEL":            p.Model,
		"OPENCLAW_THINKING":         p.Thinking,
		"NODE_OPTIONS":              "--max-old-space-size=896",
		"OPENCLAW_BROWSER_PROXY_URL": p.BrowserProxyURL,
	}
	if len(p.ConnectionsJSON) > 0 {
		data["OPENCLAW_CONNECTIONS"] = string(p.ConnectionsJSON)
	}
	if p.SystemPrompt != "" {
		data["OPENCLAW_SYSTEM_PROMPT"] = p.SystemPrompt
	}
	return data
}

// EnsureConfigSecret creates the config Secret, patching it in place if it
// already exists (idempotent across retried provision jobs).
func (c *Client) EnsureConfigSecret(ctx context.Context, ns string, params ConfigSecretParams) error {
	data := params.toStringData()
	_, err := c.Clientset.CoreV1().Secrets(ns).Create(ctx, &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: configSecretName},
		StringData: data,
	}, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("creating config secret in %s: %w", ns, err)
	}
	return c.PatchConfigSecret(ctx, ns, data)
}

// PatchConfigSecret merges new key/value pairs into the existing Secret.
func (c *Client) PatchConfigSecret(ctx context.Context, ns string, data map[string]string) error {
	patch := map[string]any{"stringData": data}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encoding secret patch: %w", err)
	}
	_, err = c.Clientset.CoreV1().Secrets(ns).Patch(ctx, configSecretName, types.MergePatchType, body, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("patching config secret in %s: %w", ns, err)
	}
	return nil
}
