package claudeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// claudeCodeSystemPrompt is the default identification prompt used when an
// ImpersonationTransport has no SystemPrompt override.
const claudeCodeSystemPrompt = "You are Claude Code, Anthropic's official CLI for Claude."

// allowedHeaders defines the HTTP headers permitted to pass through to the Anthropic API.
var allowedHeaders = map[string]bool{
	"Content-Type":    true,
	"Content-Length":  true,
	"Accept":          true,
	"Accept-Encoding": true,
	"Authorization":   true,

	// W3C Trace Context for distributed tracing correlation.
	// Traceparent and Tracestate enable end-to-end trace propagation through the proxy.
	// Baggage is excluded - it propagates application-level context (user-id, feature-flags)
	// rather than tracing data, and is unnecessary for our use case.
	"Traceparent": true,
	"Tracestate":  true,
}

// ImpersonationTransport is an http.RoundTripper that impersonates Claude
// Code: the only client shape the Claude Code OAuth credentials are
// authorized to talk on behalf of.
type ImpersonationTransport struct {
	Base http.RoundTripper

	// SystemPrompt overrides the injected identification prompt. Empty uses
	// claudeCodeSystemPrompt.
	SystemPrompt string
}

func (t *ImpersonationTransport) systemPrompt() string {
	if t.SystemPrompt != "" {
		return t.SystemPrompt
	}
	return claudeCodeSystemPrompt
}

// Compile-time check that ImpersonationTransport implements http.RoundTripper.
var _ http.RoundTripper = (*ImpersonationTransport)(nil)

// RoundTrip implements http.RoundTripper interface.
// Filters/sets headers and transforms the request body to inject system prompt.
func (t *ImpersonationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	newReq := req.Clone(req.Context())

	// Filter headers to prevent client-side headers (User-Agent, custom headers, etc.)
	// from breaking Anthropic API requirements or leaking proxy implementation details.
	originalHeaders := newReq.Header
	newReq.Header = make(http.Header)
	for key, values := range originalHeaders {
		if allowedHeaders[key] {
			newReq.Header[key] = values
		}
	}

	newReq.Header.Set("Anthropic-Beta", "oauth-2025-04-20,claude-code-20250219,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14")
	newReq.Header.Set("Anthropic-Version", "2023-06-01")

	if req.Method != http.MethodPost || req.Body == nil {
		return base.RoundTrip(newReq)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("impersonation: read request body: %w", err)
	}

	injected, err := t.injectSystemPrompt(body)
	if err != nil {
		return nil, fmt.Errorf("impersonation: inject system prompt: %w", err)
	}

	newReq.Body = io.NopCloser(bytes.NewReader(injected))
	newReq.ContentLength = int64(len(injected))
	newReq.Header.Set("Content-Length", fmt.Sprint(len(injected)))

	return base.RoundTrip(newReq)
}

// injectSystemPrompt parses body as a JSON object and ensures its "system"
// field is an array whose first element is the impersonation prompt.
// Non-object bodies pass through unchanged.
func (t *ImpersonationTransport) injectSystemPrompt(body []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body, nil
	}

	system, err := t.ensureSystemPrompt(obj["system"])
	if err != nil {
		return nil, err
	}
	obj["system"] = system

	return json.Marshal(obj)
}

// ensureSystemPrompt returns a "system" array value with the impersonation
// prompt as its first element, preserving any existing entries.
func (t *ImpersonationTransport) ensureSystemPrompt(raw json.RawMessage) (json.RawMessage, error) {
	prompt := t.systemPrompt()

	var entries []json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &entries); err != nil {
			entries = nil // "system" was a bare string or malformed; replace it.
		}
	}

	if len(entries) > 0 {
		var first map[string]string
		if err := json.Unmarshal(entries[0], &first); err == nil {
			if first["type"] == "text" && first["text"] == prompt {
				return json.Marshal(entries)
			}
		}
	}

	promptElem, err := json.Marshal(map[string]string{"type": "text", "text": prompt})
	if err != nil {
		return nil, err
	}
	return json.Marshal(append([]json.RawMessage{promptElem}, entries...))
}
