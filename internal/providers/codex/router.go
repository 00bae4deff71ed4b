package codex

import (
	"github.com/go-chi/chi/v5"

	"github.com/hllvc/llmproxy/internal/plugin"
	"github.com/hllvc/llmproxy/internal/proxy"
)

// router mounts one client-facing wire format against the shared
// Chat-Completions-native dispatcher, the same pattern claudeapi uses for
// its Anthropic-native dispatcher.
type router struct {
	prefix       string
	clientFormat proxy.Format
	upstreamPath string
	dispatcher   *proxy.Dispatcher
}

var _ plugin.Router = (*router)(nil)

func (r *router) Prefix() string { return r.prefix }

func (r *router) Mount(mux chi.Router) {
	mux.Post("/", r.dispatcher.Handler(r.clientFormat, r.upstreamPath))
}
