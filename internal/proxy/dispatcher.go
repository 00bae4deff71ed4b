package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hllvc/llmproxy/internal/credentials"
	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/streambuffer"
	"github.com/hllvc/llmproxy/internal/streampipe"
	"github.com/hllvc/llmproxy/internal/wireformat"
)

// defaultUpstreamTimeout bounds a single upstream call's wall clock, per the
// concurrency model's default 300s.
const defaultUpstreamTimeout = 300 * time.Second

// Dispatcher implements the multi-format proxy control flow (§4.10): decode
// the client's request, translate it into a provider's native wire format,
// forward it upstream with that provider's credentials, translate the
// response back, and emit the full request-lifecycle hook sequence.
type Dispatcher struct {
	// ProviderName identifies the adapter for hook/log context.
	ProviderName string
	NativeFormat Format
	Upstream     *url.URL
	// Transport executes the upstream call; provider plugins build this as
	// their own OAuth2/impersonation/static-key chain.
	Transport http.RoundTripper
	// Credentials, if set, supplies Authorization: Bearer <token>. If nil,
	// Transport is assumed to already attach auth (e.g. a static API key
	// transport), and no Authorization header is added here.
	Credentials    *credentials.Manager
	Hooks          *hooks.Manager
	RequestTimeout time.Duration

	// Tracer emits a span around each request when set; nil disables
	// tracing (tests and callers that don't wire observability.Instrument).
	Tracer trace.Tracer

	// AlwaysStreamUpstream marks a provider whose upstream only ever speaks
	// SSE (e.g. it requires "stream": true regardless of what the client
	// asked for). When true and the client requested a unary response, the
	// stream-buffer adapter (§4.5) reassembles one instead of forwarding a
	// plain JSON body that will never arrive.
	AlwaysStreamUpstream bool
}

// Handler returns an http.HandlerFunc that accepts requests in clientFormat
// and dispatches them to the provider's native format.
func (d *Dispatcher) Handler(clientFormat Format, upstreamPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.serve(w, r, clientFormat, upstreamPath)
	}
}

func (d *Dispatcher) serve(w http.ResponseWriter, r *http.Request, clientFormat Format, upstreamPath string) {
	requestID := uuid.NewString()
	ctx := r.Context()
	started := time.Now()

	if d.Tracer != nil {
		var span trace.Span
		ctx, span = d.Tracer.Start(ctx, "proxy.dispatch", trace.WithAttributes(
			attribute.String("llmproxy.provider", d.ProviderName),
			attribute.String("llmproxy.client_format", string(clientFormat)),
			attribute.String("llmproxy.request_id", requestID),
		))
		defer span.End()
	}

	d.emit(ctx, requestID, hooks.EventRequestStarted, map[string]any{
		"method": r.Method,
		"url":    r.URL.String(),
	})

	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", "failed to read request body")
		return
	}

	clientReq, err := decodeRequest(clientFormat, body)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", err.Error())
		return
	}

	nativeReq, err := convertRequest(clientFormat, d.NativeFormat, clientReq)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", err.Error())
		return
	}

	clientWantsStream := requestStream(clientReq)
	upstreamStream := clientWantsStream || d.AlwaysStreamUpstream
	setNativeStream(nativeReq, upstreamStream)

	nativeBody, err := json.Marshal(nativeReq)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", "failed to encode upstream request")
		return
	}

	reqCtx := ctx
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	reqCtx, cancel := context.WithTimeout(reqCtx, timeout)
	defer cancel()

	upstreamReq, err := d.buildUpstreamRequest(reqCtx, upstreamPath, nativeBody)
	if err != nil {
		d.fail(ctx, w, requestID, started, "authentication_error", err.Error())
		return
	}

	d.emit(ctx, requestID, hooks.EventProviderRequestSent, map[string]any{"provider": d.ProviderName})

	resp, err := d.Transport.RoundTrip(upstreamReq)
	if err != nil {
		d.emit(ctx, requestID, hooks.EventProviderError, map[string]any{"error": err.Error()})
		d.fail(ctx, w, requestID, started, "timeout_error", "upstream request failed: "+err.Error())
		return
	}

	switch {
	case clientWantsStream:
		d.serveStreaming(ctx, w, resp, requestID, clientFormat, nativeReq, started)
	case d.AlwaysStreamUpstream:
		d.forwardUnaryViaStreamBuffer(ctx, w, resp, requestID, clientFormat, nativeReq, started)
	default:
		d.serveUnary(ctx, w, resp, requestID, clientFormat, started)
	}
}

func (d *Dispatcher) buildUpstreamRequest(ctx context.Context, upstreamPath string, body []byte) (*http.Request, error) {
	target := *d.Upstream
	target.Path = upstreamPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if d.Credentials != nil {
		token, terr := d.Credentials.GetAccessToken(ctx)
		if terr != nil {
			return nil, fmt.Errorf("obtain access token: %w", terr)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (d *Dispatcher) serveStreaming(ctx context.Context, w http.ResponseWriter, resp *http.Response, requestID string, clientFormat Format, nativeReq any, started time.Time) {
	if resp.StatusCode >= 400 {
		d.forwardUpstreamError(ctx, w, resp, requestID, started)
		return
	}

	ctx = streampipe.WithStartTime(ctx, started)
	err := streampipe.Run(ctx, w, resp, streampipe.Config{
		RequestID: requestID,
		Mode:      clientFormat.sseMode(),
		Convert:   streamConverter(d.NativeFormat, clientFormat, requestID, nativeReq),
		Hooks:     d.Hooks,
	})
	if err != nil {
		slog.ErrorContext(ctx, "streaming pipeline failed", "request_id", requestID, "error", err)
		d.emit(ctx, requestID, hooks.EventRequestFailed, map[string]any{"error": err.Error()})
		return
	}
	d.emit(ctx, requestID, hooks.EventRequestCompleted, map[string]any{
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (d *Dispatcher) serveUnary(ctx context.Context, w http.ResponseWriter, resp *http.Response, requestID string, clientFormat Format, started time.Time) {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.forwardUpstreamError(ctx, w, resp, requestID, started)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		d.fail(ctx, w, requestID, started, "timeout_error", "failed to read upstream response")
		return
	}

	nativeResp, err := decodeNativeResponse(d.NativeFormat, body)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", err.Error())
		return
	}

	clientResp, err := convertResponse(d.NativeFormat, clientFormat, nativeResp)
	if err != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", err.Error())
		return
	}

	d.emit(ctx, requestID, hooks.EventProviderResponseRecvd, map[string]any{"status_code": resp.StatusCode})
	writeJSON(ctx, w, clientResp, http.StatusOK)
	d.emit(ctx, requestID, hooks.EventRequestCompleted, map[string]any{
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

// forwardUnaryViaStreamBuffer adapts a streaming-only upstream to a unary
// client response (§4.5), used by provider adapters whose native transport
// never returns a plain JSON body.
func (d *Dispatcher) forwardUnaryViaStreamBuffer(ctx context.Context, w http.ResponseWriter, resp *http.Response, requestID string, clientFormat Format, nativeReq any, started time.Time) {
	status, result, errBody, err := streambuffer.Run(ctx, resp, streambuffer.Config{
		RequestID: requestID,
		Assemble:  nativeAssembler(d.NativeFormat, requestID, nativeReq),
		Hooks:     d.Hooks,
	})
	if err != nil {
		d.fail(ctx, w, requestID, started, "timeout_error", err.Error())
		return
	}
	if errBody != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(errBody)
		d.emit(ctx, requestID, hooks.EventRequestFailed, map[string]any{"status_code": status})
		return
	}

	nativeResp := mapToNativeResponse(d.NativeFormat, result)
	clientResp, cerr := convertResponse(d.NativeFormat, clientFormat, nativeResp)
	if cerr != nil {
		d.fail(ctx, w, requestID, started, "invalid_request_error", cerr.Error())
		return
	}
	writeJSON(ctx, w, clientResp, status)
	d.emit(ctx, requestID, hooks.EventRequestCompleted, map[string]any{
		"status_code": status,
		"duration_ms": time.Since(started).Milliseconds(),
	})
}

func (d *Dispatcher) forwardUpstreamError(ctx context.Context, w http.ResponseWriter, resp *http.Response, requestID string, started time.Time) {
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	d.emit(ctx, requestID, hooks.EventProviderError, map[string]any{"status_code": resp.StatusCode})
	d.emit(ctx, requestID, hooks.EventRequestFailed, map[string]any{"status_code": resp.StatusCode})

	for k, v := range resp.Header {
		if hopByHop[strings.ToLower(k)] {
			continue
		}
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func (d *Dispatcher) fail(ctx context.Context, w http.ResponseWriter, requestID string, started time.Time, errType, message string) {
	d.emit(ctx, requestID, hooks.EventRequestFailed, map[string]any{
		"error_type":  errType,
		"message":     message,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	writeAPIError(ctx, w, errType, message)
}

func (d *Dispatcher) emit(ctx context.Context, requestID, event string, data map[string]any) {
	if d.Hooks == nil {
		return
	}
	d.Hooks.Emit(ctx, event, requestID, data)
}

var hopByHop = map[string]bool{
	"content-length":    true,
	"transfer-encoding": true,
	"connection":        true,
}

func setNativeStream(req any, stream bool) {
	switch r := req.(type) {
	case *wireformat.MessageRequest:
		r.Stream = stream
	case *wireformat.ChatCompletionRequest:
		r.Stream = stream
	case *wireformat.ResponsesRequest:
		r.Stream = stream
	}
}

func decodeNativeResponse(format Format, body []byte) (any, error) {
	switch format {
	case FormatAnthropic:
		var resp wireformat.MessageResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode anthropic response: %w", err)
		}
		return &resp, nil
	case FormatChat:
		var resp wireformat.ChatCompletionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode chat completion response: %w", err)
		}
		return &resp, nil
	case FormatResponses:
		var resp wireformat.ResponsesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode responses response: %w", err)
		}
		return &resp, nil
	default:
		return nil, fmt.Errorf("unsupported native format %q", format)
	}
}

func mapToNativeResponse(format Format, m map[string]any) any {
	body, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	resp, err := decodeNativeResponse(format, body)
	if err != nil {
		return nil
	}
	return resp
}
