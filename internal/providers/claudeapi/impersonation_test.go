package claudeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// normalizeJSON converts a JSON string to its canonical form for comparison.
func normalizeJSON(t *testing.T, s string) string {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON: %v\nJSON: %s", err, s)
	}
	normalized, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to normalize JSON: %v", err)
	}
	return string(normalized)
}

func TestInjectSystemPrompt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no system field",
			input:    `{"model":"claude-3","messages":[{"role":"user","content":"hi"}]}`,
			expected: `{"model":"claude-3","messages":[{"role":"user","content":"hi"}],"system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"}]}`,
		},
		{
			name:     "empty system array",
			input:    `{"model":"claude-3","system":[]}`,
			expected: `{"model":"claude-3","system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"}]}`,
		},
		{
			name:     "existing system entries without the prompt",
			input:    `{"model":"claude-3","system":[{"type":"text","text":"be terse"}]}`,
			expected: `{"model":"claude-3","system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"},{"type":"text","text":"be terse"}]}`,
		},
		{
			name:     "prompt already first",
			input:    `{"model":"claude-3","system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"},{"type":"text","text":"be terse"}]}`,
			expected: `{"model":"claude-3","system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"},{"type":"text","text":"be terse"}]}`,
		},
		{
			name:     "system was a bare string, replaced with array",
			input:    `{"model":"claude-3","system":"be terse"}`,
			expected: `{"model":"claude-3","system":[{"type":"text","text":"` + claudeCodeSystemPrompt + `"}]}`,
		},
	}

	transport := &ImpersonationTransport{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := transport.injectSystemPrompt([]byte(tt.input))
			if err != nil {
				t.Fatalf("injectSystemPrompt: %v", err)
			}
			if got, want := normalizeJSON(t, string(out)), normalizeJSON(t, tt.expected); got != want {
				t.Errorf("got %s, want %s", got, want)
			}
		})
	}
}

func TestInjectSystemPromptNonObjectBodyPassesThrough(t *testing.T) {
	out, err := (&ImpersonationTransport{}).injectSystemPrompt([]byte(`[1,2,3]`))
	if err != nil {
		t.Fatalf("injectSystemPrompt: %v", err)
	}
	if string(out) != `[1,2,3]` {
		t.Errorf("expected passthrough, got %s", out)
	}
}

func TestImpersonationTransport(t *testing.T) {
	var receivedBody string
	var receivedHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"test"}`))
	}))
	defer server.Close()

	transport := &ImpersonationTransport{Base: http.DefaultTransport}
	client := &http.Client{Transport: transport}

	reqBody := `{"model":"claude-3","messages":[{"role":"user","content":"Hi"}]}`
	resp, err := client.Post(server.URL, "application/json", strings.NewReader(reqBody))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if receivedHeaders.Get("Content-Length") == "" {
		t.Error("Content-Length should be set to the rewritten body's length")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(receivedBody), &result); err != nil {
		t.Fatalf("received invalid JSON: %v", err)
	}

	systemField, exists := result["system"]
	if !exists {
		t.Fatal("system field not injected")
	}
	systemArray, ok := systemField.([]any)
	if !ok || len(systemArray) == 0 {
		t.Fatal("system field is not a non-empty array")
	}
	firstElem, ok := systemArray[0].(map[string]any)
	if !ok {
		t.Fatal("first system element is not an object")
	}
	if firstElem["type"] != "text" || firstElem["text"] != claudeCodeSystemPrompt {
		t.Errorf("unexpected first system element: %v", firstElem)
	}
	if result["model"] != "claude-3" {
		t.Error("model field not preserved")
	}
}

func TestImpersonationTransportSystemPromptOverride(t *testing.T) {
	var receivedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		receivedBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"test"}`))
	}))
	defer server.Close()

	transport := &ImpersonationTransport{Base: http.DefaultTransport, SystemPrompt: "custom prompt"}
	client := &http.Client{Transport: transport}

	resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"model":"claude-3"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if !strings.Contains(receivedBody, "custom prompt") {
		t.Errorf("expected overridden system prompt in body, got %s", receivedBody)
	}
	if strings.Contains(receivedBody, claudeCodeSystemPrompt) {
		t.Errorf("default prompt should not appear when overridden, got %s", receivedBody)
	}
}

func TestImpersonationTransportHeaderFiltering(t *testing.T) {
	var receivedHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header.Clone()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"test"}`))
	}))
	defer server.Close()

	transport := &ImpersonationTransport{Base: http.DefaultTransport}
	client := &http.Client{Transport: transport}

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"model":"claude-3"}`))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "custom-agent/1.0")
	req.Header.Set("X-Custom-Header", "should-be-filtered")
	req.Header.Set("X-Api-Key", "secret-key")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token123")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()

	if receivedHeaders.Get("X-Custom-Header") != "" {
		t.Errorf("X-Custom-Header should be filtered, got: %s", receivedHeaders.Get("X-Custom-Header"))
	}
	if receivedHeaders.Get("X-Api-Key") != "" {
		t.Errorf("X-Api-Key should be filtered, got: %s", receivedHeaders.Get("X-Api-Key"))
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type should pass through, got: %s", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get("Authorization") != "Bearer token123" {
		t.Errorf("Authorization should pass through, got: %s", receivedHeaders.Get("Authorization"))
	}
	if receivedHeaders.Get("Anthropic-Version") != "2023-06-01" {
		t.Errorf("Anthropic-Version not set correctly, got: %s", receivedHeaders.Get("Anthropic-Version"))
	}
	if !strings.Contains(receivedHeaders.Get("Anthropic-Beta"), "oauth-2025-04-20") {
		t.Errorf("Anthropic-Beta not set correctly, got: %s", receivedHeaders.Get("Anthropic-Beta"))
	}
}

func TestImpersonationTransportNonPostPassesThroughUnchanged(t *testing.T) {
	var sawBody bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawBody = r.ContentLength != 0
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &ImpersonationTransport{Base: http.DefaultTransport}
	client := &http.Client{Transport: transport}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if sawBody {
		t.Error("GET request unexpectedly carried a body")
	}
}
