package claudeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
)

// webSearchTool is the Anthropic server-tool declaration for
// WebSearchTool20250305, marshaled from the SDK's own param type rather
// than hand-written: the zero value already carries the right defaults
// (name "web_search", type "web_search_20250305").
var webSearchTool = mustMarshalWebSearchTool()

func mustMarshalWebSearchTool() json.RawMessage {
	tool := anthropic.ToolUnionParam{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{}}
	raw, err := json.Marshal(tool)
	if err != nil {
		panic(fmt.Sprintf("claudeapi: marshal web_search tool: %v", err))
	}
	return raw
}

// WebSearchTransport injects the Anthropic web-search server tool into
// every native-format request when enabled, since client-facing Chat
// Completions/Responses requests have no equivalent tool declaration for it
// (OpenAI's WebSearchOptions has no clean mapping onto Anthropic's
// server-tool model, so this is enabled globally rather than per-request).
type WebSearchTransport struct {
	Base    http.RoundTripper
	Enabled bool
}

var _ http.RoundTripper = (*WebSearchTransport)(nil)

func (t *WebSearchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if !t.Enabled || req.Method != http.MethodPost || req.Body == nil {
		return base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("websearch: read request body: %w", err)
	}

	injected, err := injectWebSearchTool(body)
	if err != nil {
		return nil, fmt.Errorf("websearch: inject tool: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(injected))
	newReq.ContentLength = int64(len(injected))
	newReq.Header.Set("Content-Length", fmt.Sprint(len(injected)))

	return base.RoundTrip(newReq)
}

func injectWebSearchTool(body []byte) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return body, nil
	}

	var tools []json.RawMessage
	if raw, ok := obj["tools"]; ok {
		if err := json.Unmarshal(raw, &tools); err != nil {
			tools = nil
		}
	}
	tools = append(tools, webSearchTool)

	merged, err := json.Marshal(tools)
	if err != nil {
		return nil, err
	}
	obj["tools"] = merged
	return json.Marshal(obj)
}
