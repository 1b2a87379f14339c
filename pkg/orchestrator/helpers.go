package orchestrator

import (
	"github.com/openclaw/cloud/internal/k8s"
	"github.com/openclaw/cloud/internal/store"
)

// nsFor is the namespace-naming convention every job handler targets.
// Box indexing beyond the first box per customer is not yet exercised by
// any in-scope job — every handler addresses box index 0 — but the
// convention is centralized here so a future multi-box customer only
// needs to thread an index through, not change every call site.
func nsFor(customerID string) string {
	return k8s.NamespaceName(customerID, 0)
}

// connectionsEnvelope builds the OPENCLAW_CONNECTIONS secret payload from
// a customer's active connections, splitting native providers (which
// contribute an environment variable name) from MCP providers (which
// contribute a server descriptor) the way update_connections requires.
func connectionsEnvelope(customerID string, conns []store.CustomerConnection) map[string]any {
	type connectionEntry struct {
		Provider string      `json:"provider"`
		Kind     string      `json:"kind"`
		EnvVar   string      `json:"env_var,omitempty"`
		MCP      interface{} `json:"mcp,omitempty"`
	}

	entries := make([]connectionEntry, 0, len(conns))
	for _, c := range conns {
		entry := connectionEntry{Provider: c.Provider, Kind: c.Kind}
		if np, ok := store.NativeProviders[c.Provider]; ok {
			entry.EnvVar = np.EnvVar
		}
		if mcp, ok := store.MCPServers[c.Provider]; ok {
			entry.MCP = mcp
		}
		entries = append(entries, entry)
	}

	return map[string]any{
		"customer_id": customerID,
		"connections": entries,
	}
}

func secretParamsFor(o *Orchestrator, telegramBotToken, telegramAllowFrom, proxyToken, model, thinking, systemPrompt string, connectionsJSON []byte) k8s.ConfigSecretParams {
	return k8s.ConfigSecretParams{
		TelegramBotToken:  telegramBotToken,
		TelegramAllowFrom: telegramAllowFrom,
		ProxyToken:        proxyToken,
		TokenProxyURL:     o.Cfg.TokenProxyURL,
		BrowserProxyURL:   o.Cfg.BrowserProxyURL,
		Model:             model,
		Thinking:          thinking,
		SystemPrompt:      systemPrompt,
		ConnectionsJSON:   connectionsJSON,
	}
}
