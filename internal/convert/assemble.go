package convert

import (
	"encoding/json"
	"iter"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// accumulated is the terminal state of one canonical event stream: the
// flattened content/tool-call/usage state a stream-buffer reassembly needs
// to build a unary response, independent of which wire format the upstream
// actually streamed.
type accumulated struct {
	model        string
	text         string
	thinking     string
	thinkingSig  string
	toolCalls    []toolCallAccumulator
	finishReason string
	usage        *Usage
}

// accumulateCanonical drains a canonical event stream into its terminal
// state: the same per-block accumulation the streaming sinks perform, minus
// the incremental frame emission, since a stream-buffer caller only wants
// the final object. tools feeds the same name-inference heuristic the
// streaming sinks use for a tool call whose name never arrived on its
// KindToolUseStart event.
func accumulateCanonical(events iter.Seq2[CanonicalEvent, error], tools []RecordedTool) (*accumulated, error) {
	acc := &accumulated{}
	tool := map[int]*toolCallAccumulator{}
	var order []int

	for ce, err := range events {
		if err != nil {
			return nil, err
		}
		switch ce.Kind {
		case KindStart:
			acc.model = ce.Model
		case KindTextDelta:
			acc.text += ce.TextDelta
		case KindThinkingDelta:
			acc.thinking += ce.ThinkingDelta
		case KindThinkingSignature:
			acc.thinkingSig = ce.ThinkingSignature
		case KindToolUseStart:
			t := &toolCallAccumulator{ID: ce.ToolCallID, Name: ce.ToolCallName, NameEmitted: ce.ToolCallName != ""}
			tool[ce.ToolCallIndex] = t
			order = append(order, ce.ToolCallIndex)
		case KindToolArgsDelta:
			if t := tool[ce.ToolCallIndex]; t != nil {
				t.Args += ce.ArgsDelta
			}
		case KindToolUseStop:
			// terminal state already holds everything needed
		case KindStop:
			acc.finishReason = ce.FinishReason
		case KindUsage:
			acc.usage = ce.Usage
		}
	}

	for _, idx := range order {
		t := tool[idx]
		if !t.NameEmitted {
			if guess := inferToolName(t.Args, tools); guess != "" {
				t.Name = guess
			}
		}
		acc.toolCalls = append(acc.toolCalls, *t)
	}
	return acc, nil
}

func (a *accumulated) anthropicUsage() wireformat.Usage {
	if a.usage == nil {
		return wireformat.Usage{}
	}
	return wireformat.Usage{
		InputTokens:              a.usage.InputTokens,
		OutputTokens:             a.usage.OutputTokens,
		CacheReadInputTokens:     a.usage.CacheReadInputTokens,
		CacheCreationInputTokens: a.usage.CacheCreationInputTokens,
		ReasoningTokens:          a.usage.ReasoningTokens,
	}
}

// toolArgsJSON defaults an empty accumulated-args buffer to an empty JSON
// object: a tool call whose arguments never streamed (or streamed nothing)
// must still carry valid JSON in ContentBlock.Input.
func toolArgsJSON(args string) json.RawMessage {
	if args == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func toolArgsString(args string) string {
	if args == "" {
		return "{}"
	}
	return args
}

func (a *accumulated) contentBlocks() []wireformat.ContentBlock {
	var blocks []wireformat.ContentBlock
	if a.thinking != "" {
		blocks = append(blocks, wireformat.ContentBlock{Type: "thinking", Thinking: a.thinking, Signature: a.thinkingSig})
	}
	if a.text != "" {
		blocks = append(blocks, wireformat.ContentBlock{Type: "text", Text: a.text})
	}
	for _, t := range a.toolCalls {
		blocks = append(blocks, wireformat.ContentBlock{Type: "tool_use", ID: t.ID, Name: t.Name, Input: toolArgsJSON(t.Args)})
	}
	return blocks
}

// AssembleAnthropicStream reassembles a native Anthropic Messages SSE stream
// into the unary MessageResponse the client would have received had it not
// forced "stream":true, per the stream-buffer adapter's reassembly step.
func AssembleAnthropicStream(events iter.Seq2[wireformat.StreamEvent, error], id string, tools []wireformat.ToolDef) (*wireformat.MessageResponse, error) {
	acc, err := accumulateCanonical(anthropicToCanonical(events), recordedToolsFromAnthropic(tools))
	if err != nil {
		return nil, err
	}
	return &wireformat.MessageResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      acc.model,
		Content:    acc.contentBlocks(),
		StopReason: finishReasonToAnthropic(acc.finishReason),
		Usage:      acc.anthropicUsage(),
	}, nil
}

// AssembleChatStream reassembles a native Chat Completions chunk stream into
// the unary ChatCompletionResponse the client would have received unary.
func AssembleChatStream(chunks iter.Seq2[*wireformat.ChatCompletionChunk, error], id string, tools []wireformat.ChatTool) (*wireformat.ChatCompletionResponse, error) {
	acc, err := accumulateCanonical(chatToCanonical(chunks), recordedToolsFromChat(tools))
	if err != nil {
		return nil, err
	}

	msg := &wireformat.ChatMessage{Role: "assistant"}
	text := acc.text
	if acc.thinking != "" {
		text = RenderThinking(acc.thinking, acc.thinkingSig) + text
	}
	msg.Content = jsonString(text)
	for _, t := range acc.toolCalls {
		msg.ToolCalls = append(msg.ToolCalls, wireformat.ChatToolCall{
			ID: t.ID, Type: "function",
			Function: wireformat.ChatToolCallFunc{Name: t.Name, Arguments: toolArgsString(t.Args)},
		})
	}

	// acc.finishReason is already in the canonical vocabulary, which for a
	// Chat source is the untranslated chunk finish_reason (same strings).
	finish := acc.finishReason
	switch {
	case len(acc.toolCalls) > 0:
		finish = "tool_calls"
	case finish == "":
		finish = "stop"
	}
	return &wireformat.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Model:   acc.model,
		Choices: []wireformat.ChatChoice{{Index: 0, Message: msg, FinishReason: &finish}},
		Usage:   acc.anthropicUsage().ToChatUsage(),
	}, nil
}

// AssembleResponsesStream reassembles a native Responses API event stream
// into the unary ResponsesResponse the client would have received unary.
func AssembleResponsesStream(events iter.Seq2[*wireformat.ResponsesStreamEvent, error], id string, tools []wireformat.ResponsesTool) (*wireformat.ResponsesResponse, error) {
	acc, err := accumulateCanonical(responsesToCanonical(events), recordedToolsFromResponses(tools))
	if err != nil {
		return nil, err
	}

	var output []wireformat.ResponsesItem
	if acc.thinking != "" {
		output = append(output, wireformat.ResponsesItem{
			Type:             "reasoning",
			Summary:          []wireformat.ResponsesSummaryPart{{Type: "summary_text", Text: acc.thinking}},
			EncryptedContent: acc.thinkingSig,
		})
	}
	if acc.text != "" {
		output = append(output, wireformat.ResponsesItem{
			Type: "message", Role: "assistant",
			Content: []wireformat.ResponsesContent{{Type: "output_text", Text: acc.text}},
		})
	}
	for _, t := range acc.toolCalls {
		output = append(output, wireformat.ResponsesItem{
			Type: "function_call", CallID: t.ID, Name: t.Name, Arguments: toolArgsString(t.Args),
		})
	}

	status := "completed"
	if acc.finishReason == "length" {
		status = "incomplete"
	}
	return &wireformat.ResponsesResponse{
		ID:     id,
		Object: "response",
		Status: status,
		Model:  acc.model,
		Output: output,
		Usage:  acc.anthropicUsage().ToResponsesUsage(),
	}, nil
}
