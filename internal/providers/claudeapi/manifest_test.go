package claudeapi

import (
	"testing"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/plugin"
)

func TestNewWiresThreeRouters(t *testing.T) {
	ctx := &plugin.PluginContext{
		RawConfig: map[string]any{},
		Hooks:     hooks.NewRegistry(),
	}

	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.Name != Name {
		t.Errorf("Name = %q, want %q", rt.Name, Name)
	}
	if !rt.IsAuthProvider {
		t.Error("expected IsAuthProvider true")
	}
	if len(rt.Routers) != 3 {
		t.Fatalf("expected 3 routers, got %d", len(rt.Routers))
	}
	prefixes := map[string]bool{}
	for _, r := range rt.Routers {
		prefixes[r.Prefix()] = true
	}
	for _, want := range []string{"/v1/messages", "/v1/chat/completions", "/v1/responses"} {
		if !prefixes[want] {
			t.Errorf("missing router for prefix %q", want)
		}
	}
}

func TestNewHonorsBaseURLOverride(t *testing.T) {
	ctx := &plugin.PluginContext{
		RawConfig: map[string]any{"base_url": "https://example.test"},
		Hooks:     hooks.NewRegistry(),
	}
	if _, err := New(ctx); err != nil {
		t.Fatalf("New: %v", err)
	}
}
