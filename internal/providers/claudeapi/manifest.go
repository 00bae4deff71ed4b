// Package claudeapi implements the Anthropic Messages provider plugin: an
// oauth2-backed credential manager using the Claude Code OAuth client, the
// impersonation transport that makes those credentials acceptable upstream,
// and the proxy.Dispatcher wiring that exposes all three client wire
// formats against the single Anthropic-native upstream.
package claudeapi

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"golang.org/x/oauth2"

	"github.com/hllvc/llmproxy/internal/credentials"
	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/plugin"
	"github.com/hllvc/llmproxy/internal/proxy"
	"github.com/hllvc/llmproxy/internal/tokenstore"
	"github.com/hllvc/llmproxy/internal/tokensource"
)

// Name is the provider identity used for routing, hooks, and the
// Credentials map key in plugin.PluginContext.
const Name = "claude_api"

// defaultBaseURL is Anthropic's public API host; overridable per deployment
// via RawConfig["base_url"].
const defaultBaseURL = "https://api.anthropic.com"

func init() {
	plugin.RegisterEntryPoint(plugin.Manifest{
		Name:           Name,
		Kind:           plugin.KindProvider,
		FormatAdapters: []string{"claude_api:anthropic"},
		Enabled:        true,
	}, New)
}

// New builds the claude_api provider Runtime: three Routers (one per client
// wire format) all dispatching against the same Anthropic-native upstream,
// sharing one Dispatcher and one credential manager.
func New(ctx *plugin.PluginContext) (*plugin.Runtime, error) {
	baseURL := defaultBaseURL
	if v, ok := ctx.RawConfig["base_url"].(string); ok && v != "" {
		baseURL = v
	}
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("claudeapi: parse base_url: %w", err)
	}

	mgr := ctx.Credentials[Name]

	base := proxy.DefaultTransport()
	var transport http.RoundTripper = &ImpersonationTransport{Base: base}
	transport = &WebSearchTransport{Base: transport, Enabled: webSearchEnabled()}

	hookMgr := hooks.NewManager(ctx.Hooks, nil)

	dispatcher := &proxy.Dispatcher{
		ProviderName: Name,
		NativeFormat: proxy.FormatAnthropic,
		Upstream:     upstream,
		Transport:    transport,
		Credentials:  mgr,
		Hooks:        hookMgr,
		Tracer:       ctx.Tracer,
	}

	return &plugin.Runtime{
		Name:           Name,
		Adapter:        &Adapter{},
		IsAuthProvider: true,
		Routers: []plugin.Router{
			&router{prefix: "/v1/messages", clientFormat: proxy.FormatAnthropic, upstreamPath: "/v1/messages", dispatcher: dispatcher},
			&router{prefix: "/v1/chat/completions", clientFormat: proxy.FormatChat, upstreamPath: "/v1/messages", dispatcher: dispatcher},
			&router{prefix: "/v1/responses", clientFormat: proxy.FormatResponses, upstreamPath: "/v1/messages", dispatcher: dispatcher},
		},
	}, nil
}

// Adapter identifies the claude_api provider to the registry.
type Adapter struct{}

func (a *Adapter) Name() string { return Name }

// OAuthConfig returns the oauth2.Config for the Claude Code public client,
// used by the app layer to construct this provider's credentials.Manager
// before the plugin registry is loaded.
func OAuthConfig() oauth2.Config {
	return oauth2.Config{
		ClientID: tokensource.ClientID,
		Endpoint: tokensource.Endpoint,
		Scopes:   tokensource.Scopes,
	}
}

// NewCredentialsManager builds this provider's credentials.Manager, wired
// with the JSON-request transport Anthropic's token endpoint requires in
// place of oauth2's default form encoding. The app layer calls this once per
// deployment and hands the result to PluginContext.Credentials[Name].
func NewCredentialsManager(store tokenstore.TokenStore) *credentials.Manager {
	return credentials.NewManager(OAuthConfig(), store, nil,
		credentials.WithHTTPClient(tokensource.JSONRefreshClient(nil)))
}

// webSearchEnabled reports whether the Anthropic web-search server tool
// should be allowed through, per LLMPROXY_ENABLE_WEB_SEARCH.
func webSearchEnabled() bool {
	return os.Getenv("LLMPROXY_ENABLE_WEB_SEARCH") == "true"
}
