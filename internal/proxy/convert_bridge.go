package proxy

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/hllvc/llmproxy/internal/convert"
	"github.com/hllvc/llmproxy/internal/sse"
	"github.com/hllvc/llmproxy/internal/streambuffer"
	"github.com/hllvc/llmproxy/internal/streampipe"
	"github.com/hllvc/llmproxy/internal/wireformat"
)

// decodeRequest parses body as format's client-facing request shape and
// validates it.
func decodeRequest(format Format, body []byte) (any, error) {
	switch format {
	case FormatAnthropic:
		var req wireformat.MessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode anthropic request: %w", err)
		}
		if err := wireformat.ValidateMessageRequest(&req); err != nil {
			return nil, err
		}
		return &req, nil
	case FormatChat:
		var req wireformat.ChatCompletionRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode chat completion request: %w", err)
		}
		if err := wireformat.ValidateChatCompletionRequest(&req); err != nil {
			return nil, err
		}
		return &req, nil
	case FormatResponses:
		var req wireformat.ResponsesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("decode responses request: %w", err)
		}
		if err := wireformat.ValidateResponsesRequest(&req); err != nil {
			return nil, err
		}
		return &req, nil
	default:
		return nil, fmt.Errorf("unknown client format %q", format)
	}
}

// requestStream reports whether the decoded client request asked to stream.
func requestStream(req any) bool {
	switch r := req.(type) {
	case *wireformat.MessageRequest:
		return r.Stream
	case *wireformat.ChatCompletionRequest:
		return r.Stream
	case *wireformat.ResponsesRequest:
		return r.Stream
	default:
		return false
	}
}

// convertRequest translates req (in from's shape) into to's shape. Identity
// when from == to.
func convertRequest(from, to Format, req any) (any, error) {
	if from == to {
		return req, nil
	}
	switch from {
	case FormatAnthropic:
		r := req.(*wireformat.MessageRequest)
		switch to {
		case FormatChat:
			return convert.AnthropicRequestToChat(r)
		case FormatResponses:
			return convert.AnthropicRequestToResponses(r)
		}
	case FormatChat:
		r := req.(*wireformat.ChatCompletionRequest)
		switch to {
		case FormatAnthropic:
			return convert.ChatRequestToAnthropic(r)
		case FormatResponses:
			return convert.ChatRequestToResponses(r)
		}
	case FormatResponses:
		r := req.(*wireformat.ResponsesRequest)
		switch to {
		case FormatAnthropic:
			return convert.ResponsesRequestToAnthropic(r)
		case FormatChat:
			return convert.ResponsesRequestToChat(r)
		}
	}
	return nil, fmt.Errorf("no request conversion from %q to %q", from, to)
}

// convertResponse translates resp (in from's shape) into to's shape.
// Identity when from == to.
func convertResponse(from, to Format, resp any) (any, error) {
	if from == to {
		return resp, nil
	}
	switch from {
	case FormatAnthropic:
		r := resp.(*wireformat.MessageResponse)
		switch to {
		case FormatChat:
			return convert.AnthropicResponseToChat(r), nil
		case FormatResponses:
			return convert.AnthropicResponseToResponses(r), nil
		}
	case FormatChat:
		r := resp.(*wireformat.ChatCompletionResponse)
		switch to {
		case FormatAnthropic:
			return convert.ChatResponseToAnthropic(r)
		case FormatResponses:
			return convert.ChatResponseToResponses(r)
		}
	case FormatResponses:
		r := resp.(*wireformat.ResponsesResponse)
		switch to {
		case FormatAnthropic:
			return convert.ResponsesResponseToAnthropic(r), nil
		case FormatChat:
			return convert.ResponsesResponseToChat(r), nil
		}
	}
	return nil, fmt.Errorf("no response conversion from %q to %q", from, to)
}

// decodeTyped turns raw SSE events into a typed event sequence by JSON
// decoding each event's data field. A "[DONE]" sentinel ends iteration.
func decodeTyped[T any](events iter.Seq2[sse.Event, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for ev, err := range events {
			var zero T
			if err != nil {
				if !yield(zero, err) {
					return
				}
				continue
			}
			if ev.Data == "[DONE]" {
				return
			}
			var v T
			if jerr := json.Unmarshal([]byte(ev.Data), &v); jerr != nil {
				if !yield(zero, jerr) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// requestTools extracts the request's declared tools in its own format's
// shape, used by the convert package's streaming functions to track tool
// call names/ids across deltas.
type requestTools struct {
	anthropic []wireformat.ToolDef
	chat      []wireformat.ChatTool
	responses []wireformat.ResponsesTool
}

func toolsFrom(format Format, req any) requestTools {
	switch format {
	case FormatAnthropic:
		return requestTools{anthropic: req.(*wireformat.MessageRequest).Tools}
	case FormatChat:
		return requestTools{chat: req.(*wireformat.ChatCompletionRequest).Tools}
	case FormatResponses:
		return requestTools{responses: req.(*wireformat.ResponsesRequest).Tools}
	}
	return requestTools{}
}

// streamConverter builds a streampipe.Converter that decodes upstream SSE
// events in native's shape, translates them to client's shape via the
// convert package, and frames each as a streampipe.Frame in client's SSE
// convention. requestID seeds any synthesized client-format IDs.
func streamConverter(native, client Format, requestID string, nativeReq any) streampipe.Converter {
	tools := toolsFrom(native, nativeReq)

	return func(events iter.Seq2[sse.Event, error]) iter.Seq2[streampipe.Frame, error] {
		return func(yield func(streampipe.Frame, error) bool) {
			switch native {
			case FormatAnthropic:
				src := decodeTyped[wireformat.StreamEvent](events)
				switch client {
				case FormatAnthropic:
					yieldAnthropicFrames(src, yield)
				case FormatChat:
					yieldChatFrames(convert.StreamAnthropicToChat(src, requestID, tools.anthropic), yield)
				case FormatResponses:
					yieldResponsesFrames(convert.StreamAnthropicToResponses(src, requestID, tools.anthropic), yield)
				}
			case FormatChat:
				src := decodeTyped[*wireformat.ChatCompletionChunk](events)
				switch client {
				case FormatAnthropic:
					yieldAnthropicFrames(convert.StreamChatToAnthropic(src, tools.chat), yield)
				case FormatChat:
					yieldChatFrames(src, yield)
				case FormatResponses:
					yieldResponsesFrames(convert.StreamChatToResponses(src, requestID, tools.chat), yield)
				}
			case FormatResponses:
				src := decodeTyped[*wireformat.ResponsesStreamEvent](events)
				switch client {
				case FormatAnthropic:
					yieldAnthropicFrames(convert.StreamResponsesToAnthropic(src, tools.responses), yield)
				case FormatChat:
					yieldChatFrames(convert.StreamResponsesToChat(src, tools.responses), yield)
				case FormatResponses:
					yieldResponsesFrames(src, yield)
				}
			}
		}
	}
}

func yieldAnthropicFrames(events iter.Seq2[wireformat.StreamEvent, error], yield func(streampipe.Frame, error) bool) {
	for ev, err := range events {
		if err != nil {
			if !yield(streampipe.Frame{}, err) {
				return
			}
			continue
		}
		if !yield(streampipe.Frame{Name: ev.Type, Data: ev}, nil) {
			return
		}
	}
}

func yieldChatFrames(chunks iter.Seq2[*wireformat.ChatCompletionChunk, error], yield func(streampipe.Frame, error) bool) {
	for chunk, err := range chunks {
		if err != nil {
			if !yield(streampipe.Frame{}, err) {
				return
			}
			continue
		}
		if !yield(streampipe.Frame{Data: chunk}, nil) {
			return
		}
	}
}

func yieldResponsesFrames(events iter.Seq2[*wireformat.ResponsesStreamEvent, error], yield func(streampipe.Frame, error) bool) {
	for ev, err := range events {
		if err != nil {
			if !yield(streampipe.Frame{}, err) {
				return
			}
			continue
		}
		if !yield(streampipe.Frame{Data: ev}, nil) {
			return
		}
	}
}

// nativeAssembler builds a streambuffer.Assembler that reassembles native's
// SSE stream through the real per-format streaming converter
// (internal/convert), the same canonical-event accumulation the streaming
// sinks perform, instead of falling through to streambuffer's generic
// last-data-wins scan. requestID seeds the assembled response's id; tools
// feeds the tool-call name-inference heuristic for a name that never
// streamed.
func nativeAssembler(native Format, requestID string, nativeReq any) streambuffer.Assembler {
	tools := toolsFrom(native, nativeReq)

	return func(events iter.Seq2[sse.Event, error]) (map[string]any, error) {
		switch native {
		case FormatAnthropic:
			resp, err := convert.AssembleAnthropicStream(decodeTyped[wireformat.StreamEvent](events), requestID, tools.anthropic)
			if err != nil {
				return nil, err
			}
			return structToMap(resp)
		case FormatChat:
			resp, err := convert.AssembleChatStream(decodeTyped[*wireformat.ChatCompletionChunk](events), requestID, tools.chat)
			if err != nil {
				return nil, err
			}
			return structToMap(resp)
		case FormatResponses:
			resp, err := convert.AssembleResponsesStream(decodeTyped[*wireformat.ResponsesStreamEvent](events), requestID, tools.responses)
			if err != nil {
				return nil, err
			}
			return structToMap(resp)
		default:
			return nil, fmt.Errorf("stream buffer assembly: unsupported native format %q", native)
		}
	}
}

// structToMap round-trips a typed native response through JSON into the
// generic map shape streambuffer.Assembler returns, so streambuffer's
// usage-backfill and normalization logic (which operates on the generic map)
// applies uniformly regardless of native format.
func structToMap(v any) (map[string]any, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal assembled response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("unmarshal assembled response: %w", err)
	}
	return m, nil
}
