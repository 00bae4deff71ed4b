package claudeapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/hllvc/llmproxy/internal/plugin"
	"github.com/hllvc/llmproxy/internal/proxy"
)

// router mounts one client-facing wire format against the shared Dispatcher.
// claude_api declares three of these (Anthropic, Chat Completions,
// Responses) so each client speaks its native format while they all share
// one upstream connection, one credential manager, and one hook sequence.
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
