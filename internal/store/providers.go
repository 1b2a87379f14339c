package store

// NativeProvider describes a connection type the gateway talks to directly
// via an environment variable injected into the box's Deployment, rather
// than through an MCP server subprocess.
type NativeProvider struct {
	Slug   string
	EnvVar string
}

// NativeProviders is keyed by the provider slug stored on a
// CustomerConnection row.
var NativeProviders = map[string]NativeProvider{
	"github": {Slug: "github", EnvVar: "GH_TOKEN"},
	"notion": {Slug: "notion", EnvVar: "NOTION_API_KEY"},
	"slack":  {Slug: "slack", EnvVar: "SLACK_BOT_TOKEN"},
}

// MCPServer describes a connection type surfaced to the box as an MCP
// server descriptor rather than a bare environment variable.
type MCPServer struct {
	Slug    string
	Command string
	Args    []string
}

var MCPServers = map[string]MCPServer{
	"linear": {Slug: "linear", Command: "npx", Args: []string{"-y", "@linear/mcp-server"}},
	"jira":   {Slug: "jira", Command: "npx", Args: []string{"-y", "@jira/mcp-server"}},
	"google": {Slug: "google", Command: "npx", Args: []string{"-y", "@google/mcp-server"}},
}

// IsNative reports whether a provider slug is a native connection.
func IsNative(provider string) bool {
	_, ok := NativeProviders[provider]
	return ok
}

// IsMCP reports whether a provider slug is an MCP connection.
func IsMCP(provider string) bool {
	_, ok := MCPServers[provider]
	return ok
}
