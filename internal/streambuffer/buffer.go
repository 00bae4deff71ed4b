// Package streambuffer implements the stream-to-buffer adapter: it forces a
// streaming upstream call even for a non-streaming client request, then
// reassembles a single unary response from the collected SSE chunks.
package streambuffer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/sse"
)

// ForceStreaming sets body's "stream" field to true. If body has no "stream"
// field, the original payload is preserved under "original_data" and the
// top-level object becomes {"stream": true, "original_data": <body>}.
func ForceStreaming(body []byte) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("streambuffer: decode request body: %w", err)
	}
	if _, ok := obj["stream"]; ok {
		obj["stream"] = true
		return json.Marshal(obj)
	}
	wrapped := map[string]any{
		"stream":        true,
		"original_data": obj,
	}
	return json.Marshal(wrapped)
}

// Assembler turns the complete sequence of upstream SSE events into a single
// unary response object. Implementations close over the per-request
// converter/accumulator state for one sink format.
type Assembler func(events iter.Seq2[sse.Event, error]) (result map[string]any, err error)

// Config describes one stream-to-buffer pass.
type Config struct {
	RequestID string
	Assemble  Assembler
	Hooks     *hooks.Manager
}

// Run reads resp fully. On a >=400 status, the error body is returned
// verbatim alongside the status. On success, the SSE stream is assembled
// into a unary result via cfg.Assemble, falling back to a raw JSON parse and
// then a generic last-data-wins SSE scan if no usage/result.
func Run(ctx context.Context, resp *http.Response, cfg Config) (status int, result map[string]any, errBody []byte, err error) {
	defer resp.Body.Close()

	emit := func(event string, data map[string]any) {
		if cfg.Hooks == nil {
			return
		}
		if data == nil {
			data = map[string]any{}
		}
		data["request_id"] = cfg.RequestID
		cfg.Hooks.Emit(ctx, event, cfg.RequestID, data)
	}

	emit(hooks.EventProviderStreamStart, nil)
	started := time.Now()

	if resp.StatusCode >= 400 {
		body, rerr := io.ReadAll(resp.Body)
		if rerr != nil {
			return 0, nil, nil, fmt.Errorf("streambuffer: read error body: %w", rerr)
		}
		emit(hooks.EventProviderStreamEnd, map[string]any{"total_bytes": len(body), "cancelled": false, "duration_ms": time.Since(started).Milliseconds()})
		return resp.StatusCode, nil, body, nil
	}

	raw, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		emit(hooks.EventProviderStreamEnd, map[string]any{"cancelled": ctx.Err() != nil})
		return 0, nil, nil, fmt.Errorf("streambuffer: read upstream body: %w", rerr)
	}

	res, aerr := cfg.Assemble(sse.Parse(bytes.NewReader(raw)))
	if aerr != nil {
		slog.ErrorContext(ctx, "stream assembly failed, falling back", "request_id", cfg.RequestID, "error", aerr)
		res = nil
	}

	if res == nil {
		res = fallbackAssemble(raw)
	}

	res = normalizeResult(res)

	if usageMissingOrZero(res) {
		if usage := extractLastUsage(raw); usage != nil {
			res["usage"] = usage
		}
	}

	emit(hooks.EventProviderStreamEnd, map[string]any{
		"total_bytes": len(raw),
		"cancelled":   ctx.Err() != nil,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	return resp.StatusCode, res, nil, nil
}

// fallbackAssemble tries a raw JSON parse of the buffer, then a generic SSE
// scan keeping the last "data:" payload.
func fallbackAssemble(raw []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}

	var last string
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			data = strings.TrimSpace(data)
			if data != "" && data != "[DONE]" {
				last = data
			}
		}
	}
	if last == "" {
		return map[string]any{}
	}
	var obj2 map[string]any
	if err := json.Unmarshal([]byte(last), &obj2); err == nil {
		return obj2
	}
	return map[string]any{}
}

// normalizeResult ensures the result is a non-nil map with a "usage" key,
// inserting an empty usage object when none is present. It operates on the
// generic map shape, the same for every sink format. It does not add an
// assistant message item when none is present, and it does not fold a
// reasoning summary into text.
func normalizeResult(res map[string]any) map[string]any {
	if res == nil {
		res = map[string]any{}
	}
	if _, ok := res["usage"]; !ok {
		res["usage"] = map[string]any{}
	}
	return res
}

func usageMissingOrZero(res map[string]any) bool {
	u, ok := res["usage"].(map[string]any)
	if !ok || len(u) == 0 {
		return true
	}
	for _, v := range u {
		if n, ok := v.(float64); ok && n != 0 {
			return false
		}
	}
	return true
}

// extractLastUsage scans the concatenated SSE buffer for the last "usage"
// object, at top level or nested under "response", even when the chosen
// Assembler didn't surface one.
func extractLastUsage(raw []byte) map[string]any {
	var last map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			continue
		}
		if u, ok := obj["usage"].(map[string]any); ok {
			last = u
			continue
		}
		if respObj, ok := obj["response"].(map[string]any); ok {
			if u, ok := respObj["usage"].(map[string]any); ok {
				last = u
			}
		}
	}
	return last
}
