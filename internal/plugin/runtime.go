package plugin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/hllvc/llmproxy/internal/credentials"
	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/scheduler"
)

// PluginContext is the service container handed to a Factory. It exposes the
// shared infrastructure a plugin wires itself into; plugins never reach into
// each other directly, only through this context and the Registry it embeds.
type PluginContext struct {
	// RawConfig is the plugin's own deployment-config section, decoded by the
	// plugin itself (its shape is plugin-specific and unknown to this
	// package).
	RawConfig map[string]any

	HTTPClient *http.Client
	Hooks      *hooks.Registry
	Scheduler  *scheduler.Scheduler

	// Tracer, when set, is passed to a provider's Dispatcher so requests
	// are wrapped in spans. Nil (the zero value) disables tracing.
	Tracer trace.Tracer

	// Credentials maps provider name to its credential manager, populated
	// for provider plugins whose manifest declares OAuth-backed auth.
	Credentials map[string]*credentials.Manager

	// Registry is the plugin registry itself, so a plugin can look up an
	// already-loaded dependency declared in its Manifest.Dependencies.
	Registry *Registry
}

// Factory instantiates a plugin's Runtime given the shared service
// container. Returning an error stops Registry.Load at that plugin: it and
// every plugin later in the load order are left unloaded.
type Factory func(ctx *PluginContext) (*Runtime, error)

// ProviderAdapter translates between the proxy's canonical intermediate
// representation and one upstream provider's wire format. A system plugin
// (Kind == KindSystem) leaves this nil.
type ProviderAdapter interface {
	// Name identifies the adapter for routing and logging, e.g. "claude_api".
	Name() string
}

// Router mounts a plugin's HTTP surface under the dispatcher's root router.
// Prefix is the path segment the plugin owns, e.g. "/v1/messages".
type Router interface {
	Prefix() string
	Mount(r chi.Router)
}

// HookRegistration binds a plugin's hook function to an event name and
// ordering priority (lower runs first).
type HookRegistration struct {
	Event    string
	Priority int
	Hook     hooks.Hook
}

// TaskRegistration describes a scheduled task a plugin wants running; the
// Scheduler looks up TaskType in its own TaskRegistry, so the plugin must
// have registered that task type there before (or during) Load.
type TaskRegistration struct {
	Name            string
	TaskType        string
	IntervalSeconds float64
	Enabled         bool
}

// Runtime is what a Factory returns: the set of contributions one loaded
// plugin instance makes to the running proxy.
type Runtime struct {
	Name string

	// Adapter is non-nil for provider plugins.
	Adapter ProviderAdapter

	// IsAuthProvider marks a provider plugin whose adapter also owns
	// credential refresh/revocation for its upstream (as opposed to a
	// provider plugin that is unauthenticated or reuses another's
	// credentials).
	IsAuthProvider bool

	Routers []Router
	Hooks   []HookRegistration
	Tasks   []TaskRegistration
}
