// Package hooks implements the request-lifecycle event bus: a priority
// ordered registry of observers (tracing, metrics, pricing, ...) that are
// invoked synchronously at well-known points in a request's life.
package hooks

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Priority layers, lower runs earlier. Hooks within the same layer run in
// registration order.
const (
	PriorityCritical   = 100
	PriorityAuth       = 300
	PriorityEnrichment = 500
	PriorityProcessing = 700
	PriorityObservation = 800
	PriorityCleanup    = 900
)

// Event names emitted by the dispatcher and streaming pipeline.
const (
	EventRequestStarted        = "REQUEST_STARTED"
	EventProviderRequestSent   = "PROVIDER_REQUEST_SENT"
	EventProviderStreamStart   = "PROVIDER_STREAM_START"
	EventProviderStreamChunk   = "PROVIDER_STREAM_CHUNK"
	EventProviderStreamEnd     = "PROVIDER_STREAM_END"
	EventProviderResponseRecvd = "PROVIDER_RESPONSE_RECEIVED"
	EventProviderError         = "PROVIDER_ERROR"
	EventRequestFailed         = "REQUEST_FAILED"
	EventRequestCompleted      = "REQUEST_COMPLETED"
)

// Context is passed to every hook invoked for one emission. Data and
// Metadata are shared mutable maps: an earlier hook's mutation is visible to
// every hook that runs after it in the same dispatch.
type Context struct {
	Event     string
	RequestID string
	Data      map[string]any
	Metadata  map[string]any
}

// Hook observes one event kind. Name is used only for logging.
type Hook interface {
	Name() string
	Handle(ctx context.Context, hc *Context) error
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc struct {
	FuncName string
	Fn       func(ctx context.Context, hc *Context) error
}

func (f HookFunc) Name() string { return f.FuncName }
func (f HookFunc) Handle(ctx context.Context, hc *Context) error { return f.Fn(ctx, hc) }

type registration struct {
	hook     Hook
	priority int
	seq      int
}

// Registry holds, per event name, an ordered list of hooks sorted by
// (priority ascending, registration-order ascending).
type Registry struct {
	mu    sync.RWMutex
	byEvt map[string][]registration
	seq   int
}

func NewRegistry() *Registry {
	return &Registry{byEvt: make(map[string][]registration)}
}

// Register adds hook to the ordered list for event at the given priority.
func (r *Registry) Register(event string, priority int, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	list := append(r.byEvt[event], registration{hook: hook, priority: priority, seq: r.seq})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	r.byEvt[event] = list
}

func (r *Registry) hooksFor(event string) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byEvt[event]
	out := make([]Hook, len(list))
	for i, reg := range list {
		out[i] = reg.hook
	}
	return out
}

// Manager drives dispatch of events against a Registry.
type Manager struct {
	registry *Registry
	logger   *slog.Logger
}

func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{registry: registry, logger: logger}
}

// Emit constructs a Context and awaits every registered hook for event in
// order. A hook's error is logged and swallowed; the remaining hooks still
// run. Dispatch is fire-and-await: Emit returns only once every hook for
// this event has completed (or the context was cancelled).
func (m *Manager) Emit(ctx context.Context, event, requestID string, data map[string]any) {
	hc := &Context{Event: event, RequestID: requestID, Data: data, Metadata: map[string]any{}}
	for _, h := range m.registry.hooksFor(event) {
		if ctx.Err() != nil {
			return
		}
		if err := h.Handle(ctx, hc); err != nil {
			m.logger.ErrorContext(ctx, "hook failed", "hook", h.Name(), "event", event, "error", err)
		}
	}
}
