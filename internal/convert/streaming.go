package convert

import (
	"iter"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// StreamAnthropicToChat drives an upstream Anthropic SSE event sequence
// through the canonical accumulator and re-serializes it as Chat Completions
// chunks. tools is the request's recorded tool definitions, used for the
// mid-stream tool-name inference heuristic.
func StreamAnthropicToChat(events iter.Seq2[wireformat.StreamEvent, error], id string, tools []wireformat.ToolDef) iter.Seq2[*wireformat.ChatCompletionChunk, error] {
	return canonicalToChat(anthropicToCanonical(events), id, recordedToolsFromAnthropic(tools))
}

// StreamChatToAnthropic drives an upstream Chat Completions chunk sequence
// through the canonical accumulator and re-serializes it as Anthropic
// Messages SSE events.
func StreamChatToAnthropic(chunks iter.Seq2[*wireformat.ChatCompletionChunk, error], tools []wireformat.ChatTool) iter.Seq2[wireformat.StreamEvent, error] {
	return canonicalToAnthropic(chatToCanonical(chunks), recordedToolsFromChat(tools))
}

// StreamAnthropicToResponses drives an upstream Anthropic SSE event sequence
// through the canonical accumulator and re-serializes it as Responses API
// events.
func StreamAnthropicToResponses(events iter.Seq2[wireformat.StreamEvent, error], id string, tools []wireformat.ToolDef) iter.Seq2[*wireformat.ResponsesStreamEvent, error] {
	return canonicalToResponses(anthropicToCanonical(events), id, recordedToolsFromAnthropic(tools))
}

// StreamResponsesToAnthropic drives an upstream Responses API event sequence
// through the canonical accumulator and re-serializes it as Anthropic
// Messages SSE events.
func StreamResponsesToAnthropic(events iter.Seq2[*wireformat.ResponsesStreamEvent, error], tools []wireformat.ResponsesTool) iter.Seq2[wireformat.StreamEvent, error] {
	return canonicalToAnthropic(responsesToCanonical(events), recordedToolsFromResponses(tools))
}

// StreamChatToResponses drives an upstream Chat Completions chunk sequence
// through the canonical accumulator and re-serializes it as Responses API
// events.
func StreamChatToResponses(chunks iter.Seq2[*wireformat.ChatCompletionChunk, error], id string, tools []wireformat.ChatTool) iter.Seq2[*wireformat.ResponsesStreamEvent, error] {
	return canonicalToResponses(chatToCanonical(chunks), id, recordedToolsFromChat(tools))
}

// StreamResponsesToChat drives an upstream Responses API event sequence
// through the canonical accumulator and re-serializes it as Chat Completions
// chunks.
func StreamResponsesToChat(events iter.Seq2[*wireformat.ResponsesStreamEvent, error], id string, tools []wireformat.ResponsesTool) iter.Seq2[*wireformat.ChatCompletionChunk, error] {
	return canonicalToChat(responsesToCanonical(events), id, recordedToolsFromResponses(tools))
}
