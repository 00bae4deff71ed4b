package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/wireformat"
)

func TestDispatcher_ChatClientToAnthropicNativeUnary(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireformat.MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("upstream: decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected a unary upstream request")
		}
		if req.Model != "claude-3-sonnet" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		resp := wireformat.MessageResponse{
			ID:         "msg_1",
			Type:       "message",
			Role:       "assistant",
			Model:      req.Model,
			Content:    []wireformat.ContentBlock{{Type: "text", Text: "hello there"}},
			StopReason: "end_turn",
			Usage:      wireformat.Usage{InputTokens: 10, OutputTokens: 5},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer upstream.Close()

	upstreamURL, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream URL: %v", err)
	}

	var emitted []string
	registry := hooks.NewRegistry()
	for _, evt := range []string{
		hooks.EventRequestStarted, hooks.EventProviderRequestSent,
		hooks.EventProviderResponseRecvd, hooks.EventRequestCompleted,
	} {
		evt := evt
		registry.Register(evt, hooks.PriorityObservation, hooks.HookFunc{
			FuncName: "recorder",
			Fn: func(ctx context.Context, hc *hooks.Context) error {
				emitted = append(emitted, hc.Event)
				return nil
			},
		})
	}

	d := &Dispatcher{
		ProviderName: "claude_api",
		NativeFormat: FormatAnthropic,
		Upstream:     upstreamURL,
		Transport:    http.DefaultTransport,
		Hooks:        hooks.NewManager(registry, nil),
	}

	body := `{"model":"claude-3-sonnet","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.Handler(FormatChat, "/v1/messages")(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var chatResp wireformat.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &chatResp); err != nil {
		t.Fatalf("decode client response: %v", err)
	}
	if len(chatResp.Choices) == 0 {
		t.Fatal("expected at least one choice")
	}
	if chatResp.Usage == nil || chatResp.Usage.PromptTokens != 10 {
		t.Errorf("usage not translated correctly: %+v", chatResp.Usage)
	}

	wantEvents := []string{
		hooks.EventRequestStarted, hooks.EventProviderRequestSent,
		hooks.EventProviderResponseRecvd, hooks.EventRequestCompleted,
	}
	if len(emitted) != len(wantEvents) {
		t.Fatalf("expected events %v, got %v", wantEvents, emitted)
	}
	for i, evt := range wantEvents {
		if emitted[i] != evt {
			t.Errorf("event[%d] = %s, want %s", i, emitted[i], evt)
		}
	}
}

func TestDispatcher_ForwardsUpstreamErrorVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer upstream.Close()

	upstreamURL, _ := url.Parse(upstream.URL)
	d := &Dispatcher{
		ProviderName: "claude_api",
		NativeFormat: FormatAnthropic,
		Upstream:     upstreamURL,
		Transport:    http.DefaultTransport,
		Hooks:        hooks.NewManager(hooks.NewRegistry(), nil),
	}

	body := `{"model":"claude-3-sonnet","messages":[{"role":"user","content":"hi"}],"max_tokens":100}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()

	d.Handler(FormatAnthropic, "/v1/messages")(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected upstream status forwarded verbatim, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "slow down") {
		t.Errorf("expected upstream error body forwarded verbatim, got %s", rec.Body.String())
	}
}

func TestDecodeRequest_RejectsInvalidBody(t *testing.T) {
	if _, err := decodeRequest(FormatAnthropic, []byte(`{"model":"x"}`)); err == nil {
		t.Error("expected validation error for missing messages/max_tokens")
	}
}

func TestConvertRequest_IdentityWhenFormatsMatch(t *testing.T) {
	req := &wireformat.MessageRequest{Model: "x"}
	out, err := convertRequest(FormatAnthropic, FormatAnthropic, req)
	if err != nil {
		t.Fatalf("convertRequest: %v", err)
	}
	if out != any(req) {
		t.Error("expected identity conversion to return the same value")
	}
}
