package streambuffer

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hllvc/llmproxy/internal/sse"
)

func TestForceStreaming_SetsExistingStreamField(t *testing.T) {
	out, err := ForceStreaming([]byte(`{"model":"gpt-4","stream":false}`))
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, true, obj["stream"])
	assert.Equal(t, "gpt-4", obj["model"])
	assert.NotContains(t, obj, "original_data")
}

func TestForceStreaming_WrapsWhenStreamFieldAbsent(t *testing.T) {
	out, err := ForceStreaming([]byte(`{"model":"gpt-4"}`))
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, true, obj["stream"])
	original, ok := obj["original_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4", original["model"])
}

func respFromBody(body string, status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestRun_ErrorStatusReturnsBodyVerbatim(t *testing.T) {
	resp := respFromBody(`{"error":"bad request"}`, http.StatusBadRequest)
	status, result, errBody, err := Run(context.Background(), resp, Config{RequestID: "r1", Assemble: func(iter.Seq2[sse.Event, error]) (map[string]any, error) {
		t.Fatal("assemble should not be called on error status")
		return nil, nil
	}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Nil(t, result)
	assert.JSONEq(t, `{"error":"bad request"}`, string(errBody))
}

func TestRun_AssemblesFromSSEAndExtractsUsage(t *testing.T) {
	body := "data: {\"type\":\"delta\",\"text\":\"hi\"}\n\n" +
		"data: {\"usage\":{\"input_tokens\":5,\"output_tokens\":3}}\n\n" +
		"data: [DONE]\n\n"

	assemble := func(events iter.Seq2[sse.Event, error]) (map[string]any, error) {
		return map[string]any{"output": []any{"hi"}}, nil
	}

	resp := respFromBody(body, http.StatusOK)
	status, result, errBody, err := Run(context.Background(), resp, Config{RequestID: "r2", Assemble: assemble})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, errBody)
	usage, ok := result["usage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), usage["input_tokens"])
}

func TestRun_FallsBackToGenericSSEScanWhenAssemblerFails(t *testing.T) {
	body := "data: {\"partial\":true}\n\n" +
		"data: {\"final\":true,\"usage\":{\"output_tokens\":7}}\n\n"

	assemble := func(events iter.Seq2[sse.Event, error]) (map[string]any, error) {
		return nil, assertErr
	}

	resp := respFromBody(body, http.StatusOK)
	status, result, _, err := Run(context.Background(), resp, Config{RequestID: "r3", Assemble: assemble})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, result["final"])
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }
