// Package codex implements the OpenAI-compatible "Codex" provider plugin: a
// static API-key transport against an OpenAI Chat Completions-shaped
// upstream, wired the same way claudeapi wires its Anthropic-native
// dispatcher but without OAuth or request-impersonation.
package codex

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/plugin"
	"github.com/hllvc/llmproxy/internal/proxy"
)

// Name is the provider identity used for routing, hooks, and RawConfig.
const Name = "codex"

const defaultBaseURL = "https://api.openai.com"

func init() {
	plugin.RegisterEntryPoint(plugin.Manifest{
		Name:           Name,
		Kind:           plugin.KindProvider,
		FormatAdapters: []string{"codex:chat_completions"},
		Enabled:        true,
	}, New)
}

// New builds the codex provider Runtime. Unlike claude_api, codex
// authenticates with a static bearer token (RawConfig["api_key"], taken from
// the plugin's config section), so no credentials.Manager is involved.
func New(ctx *plugin.PluginContext) (*plugin.Runtime, error) {
	baseURL := defaultBaseURL
	if v, ok := ctx.RawConfig["base_url"].(string); ok && v != "" {
		baseURL = v
	}
	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("codex: parse base_url: %w", err)
	}

	apiKey, _ := ctx.RawConfig["api_key"].(string)

	var transport http.RoundTripper = proxy.DefaultTransport()
	transport = &APIKeyTransport{Base: transport, APIKey: apiKey}

	hookMgr := hooks.NewManager(ctx.Hooks, nil)

	dispatcher := &proxy.Dispatcher{
		ProviderName: Name,
		NativeFormat: proxy.FormatChat,
		Upstream:     upstream,
		Transport:    transport,
		Hooks:        hookMgr,
		Tracer:       ctx.Tracer,
	}

	upstreamPath := "/v1/chat/completions"
	return &plugin.Runtime{
		Name:    Name,
		Adapter: &Adapter{},
		Routers: []plugin.Router{
			&router{prefix: "/v1/messages", clientFormat: proxy.FormatAnthropic, upstreamPath: upstreamPath, dispatcher: dispatcher},
			&router{prefix: "/v1/chat/completions", clientFormat: proxy.FormatChat, upstreamPath: upstreamPath, dispatcher: dispatcher},
			&router{prefix: "/v1/responses", clientFormat: proxy.FormatResponses, upstreamPath: upstreamPath, dispatcher: dispatcher},
		},
	}, nil
}

// Adapter identifies the codex provider to the registry.
type Adapter struct{}

func (a *Adapter) Name() string { return Name }
