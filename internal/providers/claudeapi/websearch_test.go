package claudeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchTransportInjectsToolWhenEnabled(t *testing.T) {
	var receivedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &WebSearchTransport{Base: http.DefaultTransport, Enabled: true}
	client := &http.Client{Transport: transport}

	resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"model":"claude-3","tools":[{"name":"existing"}]}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	var parsed map[string]any
	if err := json.Unmarshal([]byte(receivedBody), &parsed); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	tools, ok := parsed["tools"].([]any)
	if !ok || len(tools) != 2 {
		t.Fatalf("expected 2 tools (existing + web_search), got %v", parsed["tools"])
	}
	last, ok := tools[1].(map[string]any)
	if !ok || last["type"] != "web_search_20250305" {
		t.Errorf("expected web_search tool appended last, got %v", tools)
	}
}

func TestWebSearchTransportNoopWhenDisabled(t *testing.T) {
	var receivedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &WebSearchTransport{Base: http.DefaultTransport, Enabled: false}
	client := &http.Client{Transport: transport}

	const body = `{"model":"claude-3"}`
	resp, err := client.Post(server.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if receivedBody != body {
		t.Errorf("expected body unchanged when disabled, got %s", receivedBody)
	}
}
