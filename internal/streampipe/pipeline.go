// Package streampipe drives the upstream-SSE -> format-converter -> client-SSE
// pipeline used when both the client and the upstream provider stream.
package streampipe

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/sse"
)

// hopByHop headers are never copied from the upstream response onto the
// client response; the proxy re-derives them for its own framing.
var hopByHop = map[string]bool{
	"content-length":     true,
	"transfer-encoding":  true,
	"connection":         true,
	"cache-control":      true,
}

// Frame is one converted event ready to be serialized to the client. Name is
// only used in sse.ModeNamedEvent.
type Frame struct {
	Name string
	Data any
}

// Converter turns the upstream SSE event sequence into client-facing Frames.
// Implementations close over the per-request converter state from
// internal/convert.
type Converter func(events iter.Seq2[sse.Event, error]) iter.Seq2[Frame, error]

// Config describes one streaming pass.
type Config struct {
	RequestID string
	Mode      sse.Mode
	Convert   Converter

	// HeadersHook inspects the upstream response before any body bytes are
	// read and may return a replacement Converter (e.g. if the upstream
	// unexpectedly returned a non-SSE content type). A nil return keeps the
	// original Converter.
	HeadersHook func(resp *http.Response) Converter

	Hooks *hooks.Manager
}

// Run copies resp's status and headers onto w, then streams converted SSE
// frames to the client until the upstream closes or ctx is cancelled.
func Run(ctx context.Context, w http.ResponseWriter, resp *http.Response, cfg Config) error {
	defer resp.Body.Close()

	convert := cfg.Convert
	if cfg.HeadersHook != nil {
		if override := cfg.HeadersHook(resp); override != nil {
			convert = override
		}
	}

	header := w.Header()
	for k, vs := range resp.Header {
		if hopByHop[strings.ToLower(k)] {
			continue
		}
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	header.Set("Content-Type", "text/event-stream")
	header.Set("X-Request-ID", cfg.RequestID)
	w.WriteHeader(resp.StatusCode)

	writer, err := sse.NewWriter(w, cfg.Mode)
	if err != nil {
		return err
	}

	var (
		totalChunks int
		totalBytes  int
		started     bool
		cancelled   bool
	)

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

	for frame, ferr := range convert(sse.Parse(resp.Body)) {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if ferr != nil {
			slog.ErrorContext(ctx, "stream conversion error", "request_id", cfg.RequestID, "error", ferr)
			break
		}
		if !started {
			started = true
			emit(hooks.EventProviderStreamStart, nil)
		}
		encoded, merr := json.Marshal(frame.Data)
		if merr != nil {
			slog.ErrorContext(ctx, "failed marshaling sse frame", "request_id", cfg.RequestID, "error", merr)
			break
		}
		if werr := writer.WriteJSON(frame.Name, frame.Data); werr != nil {
			slog.ErrorContext(ctx, "failed writing sse frame to client", "request_id", cfg.RequestID, "error", werr)
			break
		}
		totalChunks++
		totalBytes += len(encoded)
		emit(hooks.EventProviderStreamChunk, map[string]any{"chunk_index": totalChunks, "bytes": len(encoded)})
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	emit(hooks.EventProviderStreamEnd, map[string]any{
		"total_chunks": totalChunks,
		"total_bytes":  totalBytes,
		"cancelled":    cancelled,
		"duration_ms":  time.Since(startFromCtx(ctx)).Milliseconds(),
	})

	return nil
}

type startTimeKey struct{}

// WithStartTime stashes the request's start time on ctx so Run can compute
// PROVIDER_STREAM_END's duration_ms without threading an extra parameter
// through every caller.
func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey{}, t)
}

func startFromCtx(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
