package convert

import (
	"iter"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// anthropicToCanonical walks an Anthropic Messages SSE event stream and
// yields CanonicalEvents. It holds the per-request state the format
// converter needs: the active content-block index -> kind mapping so a
// content_block_stop can be recognised as closing a tool call, and the
// content-index -> canonical tool-call-index mapping.
func anthropicToCanonical(events iter.Seq2[wireformat.StreamEvent, error]) iter.Seq2[CanonicalEvent, error] {
	return func(yield func(CanonicalEvent, error) bool) {
		blockKind := map[int]string{} // index -> "text"|"tool_use"|"thinking"
		toolIndex := map[int]int{}    // anthropic content index -> canonical tool call index
		nextToolIndex := 0

		for ev, err := range events {
			if err != nil {
				yield(CanonicalEvent{}, err)
				return
			}
			switch ev.Type {
			case wireformat.EventMessageStart:
				model := ""
				if ev.Message != nil {
					model = ev.Message.Model
				}
				if !yield(CanonicalEvent{Kind: KindStart, Model: model}, nil) {
					return
				}
			case wireformat.EventContentBlockStart:
				if ev.ContentBlock == nil {
					continue
				}
				blockKind[ev.Index] = ev.ContentBlock.Type
				if ev.ContentBlock.Type == "tool_use" {
					idx := nextToolIndex
					nextToolIndex++
					toolIndex[ev.Index] = idx
					if !yield(CanonicalEvent{
						Kind:          KindToolUseStart,
						ToolCallIndex: idx,
						ToolCallID:    ev.ContentBlock.ID,
						ToolCallName:  ev.ContentBlock.Name,
					}, nil) {
						return
					}
				}
			case wireformat.EventContentBlockDelta:
				if ev.ContentDelta == nil {
					continue
				}
				switch ev.ContentDelta.Type {
				case wireformat.DeltaText:
					if !yield(CanonicalEvent{Kind: KindTextDelta, TextDelta: ev.ContentDelta.Text}, nil) {
						return
					}
				case wireformat.DeltaInputJSON:
					idx := toolIndex[ev.Index]
					if !yield(CanonicalEvent{Kind: KindToolArgsDelta, ToolCallIndex: idx, ArgsDelta: ev.ContentDelta.PartialJSON}, nil) {
						return
					}
				case wireformat.DeltaThinking:
					if !yield(CanonicalEvent{Kind: KindThinkingDelta, ThinkingDelta: ev.ContentDelta.Thinking}, nil) {
						return
					}
				case wireformat.DeltaSignature:
					if !yield(CanonicalEvent{Kind: KindThinkingSignature, ThinkingSignature: ev.ContentDelta.Signature}, nil) {
						return
					}
				}
			case wireformat.EventContentBlockStop:
				if blockKind[ev.Index] == "tool_use" {
					if !yield(CanonicalEvent{Kind: KindToolUseStop, ToolCallIndex: toolIndex[ev.Index]}, nil) {
						return
					}
				}
			case wireformat.EventMessageDelta:
				finish := ""
				if ev.Delta != nil {
					finish = canonicalFinishFromAnthropic(ev.Delta.StopReason)
				}
				if finish != "" {
					if !yield(CanonicalEvent{Kind: KindStop, FinishReason: finish}, nil) {
						return
					}
				}
				if ev.Usage != nil {
					if !yield(CanonicalEvent{Kind: KindUsage, Usage: anthropicUsageToCanonical(*ev.Usage)}, nil) {
						return
					}
				}
			case wireformat.EventMessageStop, wireformat.EventPing:
				// no canonical signal
			}
		}
	}
}

func canonicalFinishFromAnthropic(stopReason string) string {
	switch stopReason {
	case "":
		return ""
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return "stop"
	}
}

func anthropicUsageToCanonical(u wireformat.Usage) *Usage {
	return &Usage{
		InputTokens:              u.InputTokens,
		OutputTokens:             u.OutputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		ReasoningTokens:          u.ReasoningTokens,
	}
}

// chatToCanonical walks an OpenAI Chat Completions chunk stream. Chat
// Completions has no native thinking container, so a `<thinking>` run
// embedded in the content delta stream is peeled back out via a
// split-tolerant scanner (thinkingStreamState) that tolerates tags split
// across chunks.
func chatToCanonical(chunks iter.Seq2[*wireformat.ChatCompletionChunk, error]) iter.Seq2[CanonicalEvent, error] {
	return func(yield func(CanonicalEvent, error) bool) {
		started := false
		thinkState := &thinkingStreamState{}
		toolIndexSeen := map[int]bool{}
		var lastUsage *Usage

		for chunk, err := range chunks {
			if err != nil {
				yield(CanonicalEvent{}, err)
				return
			}
			if !started {
				started = true
				if !yield(CanonicalEvent{Kind: KindStart, Model: chunk.Model}, nil) {
					return
				}
			}
			if chunk.Usage != nil {
				lastUsage = chatUsageToCanonical(chunk.Usage)
			}
			for _, choice := range chunk.Choices {
				if choice.Delta == nil {
					continue
				}
				if choice.Delta.Content != "" {
					plain, thinking := thinkState.feed(choice.Delta.Content)
					if thinking != "" {
						if !yield(CanonicalEvent{Kind: KindThinkingDelta, ThinkingDelta: thinking}, nil) {
							return
						}
					}
					if plain != "" {
						if !yield(CanonicalEvent{Kind: KindTextDelta, TextDelta: plain}, nil) {
							return
						}
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					idx := 0
					if tc.Index != nil {
						idx = *tc.Index
					}
					if !toolIndexSeen[idx] {
						toolIndexSeen[idx] = true
						if !yield(CanonicalEvent{Kind: KindToolUseStart, ToolCallIndex: idx, ToolCallID: tc.ID, ToolCallName: tc.Function.Name}, nil) {
							return
						}
					}
					if tc.Function.Arguments != "" {
						if !yield(CanonicalEvent{Kind: KindToolArgsDelta, ToolCallIndex: idx, ArgsDelta: tc.Function.Arguments}, nil) {
							return
						}
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					for idx := range toolIndexSeen {
						if !yield(CanonicalEvent{Kind: KindToolUseStop, ToolCallIndex: idx}, nil) {
							return
						}
					}
					if !yield(CanonicalEvent{Kind: KindStop, FinishReason: *choice.FinishReason}, nil) {
						return
					}
				}
			}
		}
		if lastUsage != nil {
			yield(CanonicalEvent{Kind: KindUsage, Usage: lastUsage}, nil)
		}
	}
}

func chatUsageToCanonical(u *wireformat.ChatUsage) *Usage {
	anth := wireformat.UsageFromChat(u)
	return &Usage{
		InputTokens:          anth.InputTokens,
		OutputTokens:         anth.OutputTokens,
		CacheReadInputTokens: anth.CacheReadInputTokens,
		ReasoningTokens:      anth.ReasoningTokens,
	}
}

// responsesToCanonical walks an OpenAI Responses API event stream.
func responsesToCanonical(events iter.Seq2[*wireformat.ResponsesStreamEvent, error]) iter.Seq2[CanonicalEvent, error] {
	return func(yield func(CanonicalEvent, error) bool) {
		toolCallIDs := map[int]string{}
		toolCallNames := map[int]string{}
		nextToolIndex := 0
		itemIndexToTool := map[string]int{}

		for ev, err := range events {
			if err != nil {
				yield(CanonicalEvent{}, err)
				return
			}
			switch ev.Type {
			case wireformat.RespEventCreated:
				model := ""
				if ev.Response != nil {
					model = ev.Response.Model
				}
				if !yield(CanonicalEvent{Kind: KindStart, Model: model}, nil) {
					return
				}
			case wireformat.RespEventOutputItemAdded:
				if ev.Item != nil && ev.Item.Type == "function_call" {
					idx := nextToolIndex
					nextToolIndex++
					itemIndexToTool[ev.Item.ID] = idx
					toolCallIDs[idx] = ev.Item.CallID
					toolCallNames[idx] = ev.Item.Name
					if !yield(CanonicalEvent{Kind: KindToolUseStart, ToolCallIndex: idx, ToolCallID: ev.Item.CallID, ToolCallName: ev.Item.Name}, nil) {
						return
					}
				}
			case wireformat.RespEventOutputTextDelta:
				if !yield(CanonicalEvent{Kind: KindTextDelta, TextDelta: ev.Delta}, nil) {
					return
				}
			case wireformat.RespEventReasoningSummaryDelta:
				if !yield(CanonicalEvent{Kind: KindThinkingDelta, ThinkingDelta: ev.Delta}, nil) {
					return
				}
			case wireformat.RespEventFunctionArgsDelta:
				idx, ok := itemIndexToTool[ev.ItemID]
				if !ok {
					continue
				}
				if !yield(CanonicalEvent{Kind: KindToolArgsDelta, ToolCallIndex: idx, ArgsDelta: ev.Delta}, nil) {
					return
				}
			case wireformat.RespEventOutputItemDone:
				if ev.Item != nil && ev.Item.Type == "function_call" {
					idx := itemIndexToTool[ev.Item.ID]
					if !yield(CanonicalEvent{Kind: KindToolUseStop, ToolCallIndex: idx}, nil) {
						return
					}
				}
			case wireformat.RespEventCompleted:
				finish := "stop"
				if len(toolCallIDs) > 0 {
					finish = "tool_calls"
				}
				if ev.Response != nil && ev.Response.Status == "incomplete" {
					finish = "length"
				}
				if !yield(CanonicalEvent{Kind: KindStop, FinishReason: finish}, nil) {
					return
				}
				if ev.Response != nil && ev.Response.Usage != nil {
					anth := wireformat.UsageFromResponses(ev.Response.Usage)
					if !yield(CanonicalEvent{Kind: KindUsage, Usage: anthropicUsageToCanonical(anth)}, nil) {
						return
					}
				}
			case wireformat.RespEventFailed:
				if !yield(CanonicalEvent{Kind: KindStop, FinishReason: "stop"}, nil) {
					return
				}
			}
		}
	}
}
