package streampipe

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hllvc/llmproxy/internal/hooks"
	"github.com/hllvc/llmproxy/internal/sse"
)

func upstreamResp(body string, status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}, "Connection": []string{"keep-alive"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestRun_StreamsFramesAndStripsHopByHopHeaders(t *testing.T) {
	body := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

	convert := func(events iter.Seq2[sse.Event, error]) iter.Seq2[Frame, error] {
		return func(yield func(Frame, error) bool) {
			for ev, err := range events {
				if !yield(Frame{Name: "relayed", Data: map[string]string{"raw": ev.Data}}, err) {
					return
				}
			}
		}
	}

	rec := httptest.NewRecorder()
	registry := hooks.NewRegistry()
	var sawStart, sawEnd bool
	registry.Register(hooks.EventProviderStreamStart, hooks.PriorityObservation, hooks.HookFunc{FuncName: "s", Fn: func(ctx context.Context, hc *hooks.Context) error {
		sawStart = true
		return nil
	}})
	registry.Register(hooks.EventProviderStreamEnd, hooks.PriorityObservation, hooks.HookFunc{FuncName: "e", Fn: func(ctx context.Context, hc *hooks.Context) error {
		sawEnd = true
		assert.Equal(t, 2, hc.Data["total_chunks"])
		return nil
	}})
	mgr := hooks.NewManager(registry, nil)

	resp := upstreamResp(body, http.StatusOK)
	resp.Header.Set("Content-Length", "1234")

	err := Run(context.Background(), rec, resp, Config{
		RequestID: "req-1",
		Mode:      sse.ModeDataOnly,
		Convert:   convert,
		Hooks:     mgr,
	})
	require.NoError(t, err)

	assert.True(t, sawStart)
	assert.True(t, sawEnd)
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), "message_start")
	assert.Contains(t, rec.Body.String(), "message_stop")
}

func TestRun_CancelledContextMarksStreamEndCancelled(t *testing.T) {
	body := "event: message_start\ndata: {}\n\n"
	convert := func(events iter.Seq2[sse.Event, error]) iter.Seq2[Frame, error] {
		return func(yield func(Frame, error) bool) {
			for ev, err := range events {
				if !yield(Frame{Name: "x", Data: ev.Data}, err) {
					return
				}
			}
		}
	}

	registry := hooks.NewRegistry()
	var cancelled bool
	registry.Register(hooks.EventProviderStreamEnd, hooks.PriorityObservation, hooks.HookFunc{FuncName: "e", Fn: func(ctx context.Context, hc *hooks.Context) error {
		cancelled, _ = hc.Data["cancelled"].(bool)
		return nil
	}})
	mgr := hooks.NewManager(registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	err := Run(ctx, rec, upstreamResp(body, http.StatusOK), Config{
		RequestID: "req-2",
		Mode:      sse.ModeDataOnly,
		Convert:   convert,
		Hooks:     mgr,
	})
	require.NoError(t, err)
	assert.True(t, cancelled)
}
