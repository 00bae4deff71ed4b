package codex

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/plugin"
)

func TestNewWiresThreeRouters(t *testing.T) {
	ctx := &plugin.PluginContext{
		RawConfig: map[string]any{"api_key": "sk-test"},
		Hooks:     hooks.NewRegistry(),
	}

	rt, err := New(ctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rt.IsAuthProvider {
		t.Error("codex should not be marked as an auth provider (static key, no credentials.Manager)")
	}
	if len(rt.Routers) != 3 {
		t.Fatalf("expected 3 routers, got %d", len(rt.Routers))
	}
}

func TestAPIKeyTransportSetsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &APIKeyTransport{Base: http.DefaultTransport, APIKey: "sk-test"}
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer sk-test")
	}
}

func TestAPIKeyTransportPassthroughWhenEmpty(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &APIKeyTransport{Base: http.DefaultTransport}
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}
