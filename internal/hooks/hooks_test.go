package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OrdersByPriorityThenRegistration(t *testing.T) {
	registry := NewRegistry()
	var order []string

	record := func(name string) Hook {
		return HookFunc{FuncName: name, Fn: func(ctx context.Context, hc *Context) error {
			order = append(order, name)
			return nil
		}}
	}

	registry.Register("evt", PriorityObservation, record("observation"))
	registry.Register("evt", PriorityCritical, record("critical"))
	registry.Register("evt", PriorityAuth, record("auth-1"))
	registry.Register("evt", PriorityAuth, record("auth-2"))
	registry.Register("evt", PriorityCleanup, record("cleanup"))

	mgr := NewManager(registry, nil)
	mgr.Emit(context.Background(), "evt", "req-1", map[string]any{})

	assert.Equal(t, []string{"critical", "auth-1", "auth-2", "observation", "cleanup"}, order)
}

func TestManager_DataMutationVisibleToLaterHooks(t *testing.T) {
	registry := NewRegistry()

	registry.Register("evt", PriorityEnrichment, HookFunc{FuncName: "writer", Fn: func(ctx context.Context, hc *Context) error {
		hc.Data["enriched"] = true
		return nil
	}})

	var sawEnriched bool
	registry.Register("evt", PriorityProcessing, HookFunc{FuncName: "reader", Fn: func(ctx context.Context, hc *Context) error {
		sawEnriched, _ = hc.Data["enriched"].(bool)
		return nil
	}})

	mgr := NewManager(registry, nil)
	mgr.Emit(context.Background(), "evt", "req-1", map[string]any{})

	require.True(t, sawEnriched)
}

func TestManager_HookErrorDoesNotStopDispatch(t *testing.T) {
	registry := NewRegistry()
	var ran []string

	registry.Register("evt", PriorityCritical, HookFunc{FuncName: "failing", Fn: func(ctx context.Context, hc *Context) error {
		ran = append(ran, "failing")
		return assert.AnError
	}})
	registry.Register("evt", PriorityCleanup, HookFunc{FuncName: "after", Fn: func(ctx context.Context, hc *Context) error {
		ran = append(ran, "after")
		return nil
	}})

	mgr := NewManager(registry, nil)
	mgr.Emit(context.Background(), "evt", "req-1", map[string]any{})

	assert.Equal(t, []string{"failing", "after"}, ran)
}
