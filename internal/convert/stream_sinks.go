package convert

import (
	"fmt"
	"iter"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// canonicalToAnthropic re-serializes canonical events as an Anthropic
// Messages SSE event sequence: message_start, content_block_start/delta/stop
// per block, message_delta (stop_reason + usage), message_stop. The model id
// carried on the source's KindStart event is read before the preamble is
// emitted, since message_start must name the model up front.
func canonicalToAnthropic(events iter.Seq2[CanonicalEvent, error], tools []RecordedTool) iter.Seq2[wireformat.StreamEvent, error] {
	return func(yield func(wireformat.StreamEvent, error) bool) {
		seq := 0
		blockOpen := false
		blockIndex := -1
		textOpen := false
		thinkingOpen := false
		tool := map[int]*toolCallAccumulator{}
		sawTool := false

		emit := func(e wireformat.StreamEvent) bool { seq++; return yield(e, nil) }

		closeBlock := func() bool {
			if blockOpen {
				if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockStop, Index: blockIndex}) {
					return false
				}
				blockOpen = false
				textOpen = false
				thinkingOpen = false
			}
			return true
		}

		next, stop := iter.Pull2(events)
		defer stop()
		model := ""
		first, hasFirst := CanonicalEvent{}, false
		if ce, err, ok := next(); ok {
			if err != nil {
				yield(wireformat.StreamEvent{}, err)
				return
			}
			if ce.Kind == KindStart {
				model = ce.Model
			} else {
				first, hasFirst = ce, true
			}
		}

		if !emit(wireformat.StreamEvent{
			Type:    wireformat.EventMessageStart,
			Message: &wireformat.MessageResponse{Type: "message", Role: "assistant", Model: model},
		}) {
			return
		}

		rest := func(yield2 func(CanonicalEvent, error) bool) {
			if hasFirst {
				if !yield2(first, nil) {
					return
				}
			}
			for {
				ce, err, ok := next()
				if !ok {
					return
				}
				if !yield2(ce, err) {
					return
				}
			}
		}

		for ce, err := range rest {
			if err != nil {
				yield(wireformat.StreamEvent{}, err)
				return
			}
			switch ce.Kind {
			case KindTextDelta:
				if !textOpen {
					if !closeBlock() {
						return
					}
					blockIndex++
					blockOpen, textOpen = true, true
					if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockStart, Index: blockIndex, ContentBlock: &wireformat.ContentBlock{Type: "text"}}) {
						return
					}
				}
				if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockDelta, Index: blockIndex, ContentDelta: &wireformat.ContentDelta{Type: wireformat.DeltaText, Text: ce.TextDelta}}) {
					return
				}
			case KindThinkingDelta:
				if !thinkingOpen {
					if !closeBlock() {
						return
					}
					blockIndex++
					blockOpen, thinkingOpen = true, true
					if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockStart, Index: blockIndex, ContentBlock: &wireformat.ContentBlock{Type: "thinking"}}) {
						return
					}
				}
				if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockDelta, Index: blockIndex, ContentDelta: &wireformat.ContentDelta{Type: wireformat.DeltaThinking, Thinking: ce.ThinkingDelta}}) {
					return
				}
			case KindThinkingSignature:
				if thinkingOpen {
					if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockDelta, Index: blockIndex, ContentDelta: &wireformat.ContentDelta{Type: wireformat.DeltaSignature, Signature: ce.ThinkingSignature}}) {
						return
					}
				}
			case KindToolUseStart:
				if !closeBlock() {
					return
				}
				blockIndex++
				blockOpen = true
				acc := &toolCallAccumulator{ID: ce.ToolCallID, Name: ce.ToolCallName}
				tool[ce.ToolCallIndex] = acc
				sawTool = true
				name := ce.ToolCallName
				if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockStart, Index: blockIndex, ContentBlock: &wireformat.ContentBlock{Type: "tool_use", ID: ce.ToolCallID, Name: name}}) {
					return
				}
			case KindToolArgsDelta:
				acc := tool[ce.ToolCallIndex]
				if acc == nil {
					continue
				}
				acc.Args += ce.ArgsDelta
				if !acc.NameEmitted && acc.Name == "" {
					if guess := inferToolName(acc.Args, tools); guess != "" {
						acc.Name = guess
						acc.NameEmitted = true
					}
				}
				if !emit(wireformat.StreamEvent{Type: wireformat.EventContentBlockDelta, Index: blockIndex, ContentDelta: &wireformat.ContentDelta{Type: wireformat.DeltaInputJSON, PartialJSON: ce.ArgsDelta}}) {
					return
				}
			case KindToolUseStop:
				// block closed by the next block-open or the final closeBlock
			case KindStop:
				if !closeBlock() {
					return
				}
				stopReason := finishReasonToAnthropic(ce.FinishReason)
				if !emit(wireformat.StreamEvent{Type: wireformat.EventMessageDelta, Delta: &wireformat.MessageDelta{StopReason: stopReason}}) {
					return
				}
			case KindUsage:
				if ce.Usage == nil {
					continue
				}
				u := &wireformat.Usage{
					InputTokens: ce.Usage.InputTokens, OutputTokens: ce.Usage.OutputTokens,
					CacheReadInputTokens: ce.Usage.CacheReadInputTokens, CacheCreationInputTokens: ce.Usage.CacheCreationInputTokens,
				}
				if !emit(wireformat.StreamEvent{Type: wireformat.EventMessageDelta, Usage: u}) {
					return
				}
			}
		}
		emit(wireformat.StreamEvent{Type: wireformat.EventMessageStop})
		_ = sawTool
	}
}

// canonicalToChat re-serializes canonical events as Chat Completions chunks.
// The first chunk carries role:"assistant" exactly once; the usage chunk is
// emitted exactly once on the terminal event even if upstream surfaced usage
// mid-stream (KindUsage only ever arrives once from a well-behaved source,
// but the sink still only forwards the first).
func canonicalToChat(events iter.Seq2[CanonicalEvent, error], id string, tools []RecordedTool) iter.Seq2[*wireformat.ChatCompletionChunk, error] {
	return func(yield func(*wireformat.ChatCompletionChunk, error) bool) {
		tool := map[int]*toolCallAccumulator{}
		sawToolCall := false
		usageSent := false

		next, stopPull := iter.Pull2(events)
		defer stopPull()
		model := ""
		first, hasFirst := CanonicalEvent{}, false
		if ce, err, ok := next(); ok {
			if err != nil {
				yield(nil, err)
				return
			}
			if ce.Kind == KindStart {
				model = ce.Model
			} else {
				first, hasFirst = ce, true
			}
		}

		base := func() *wireformat.ChatCompletionChunk {
			return &wireformat.ChatCompletionChunk{ID: id, Object: "chat.completion.chunk", Model: model}
		}
		sendDelta := func(d wireformat.ChatDelta) bool {
			c := base()
			c.Choices = []wireformat.ChatChoice{{Index: 0, Delta: &d}}
			return yield(c, nil)
		}

		if !sendDelta(wireformat.ChatDelta{Role: "assistant"}) {
			return
		}

		rest := func(yield2 func(CanonicalEvent, error) bool) {
			if hasFirst {
				if !yield2(first, nil) {
					return
				}
			}
			for {
				ce, err, ok := next()
				if !ok {
					return
				}
				if !yield2(ce, err) {
					return
				}
			}
		}

		for ce, err := range rest {
			if err != nil {
				yield(nil, err)
				return
			}
			switch ce.Kind {
			case KindTextDelta:
				if !sendDelta(wireformat.ChatDelta{Content: ce.TextDelta}) {
					return
				}
			case KindThinkingDelta:
				if !sendDelta(wireformat.ChatDelta{Content: RenderThinking(ce.ThinkingDelta, "")}) {
					return
				}
			case KindThinkingSignature:
				// the thinking text has already been sent as unsigned
				// <thinking> tags by the time the signature arrives, and a
				// Chat chunk has no slot to attach it to retroactively, so
				// it is dropped here.
			case KindToolUseStart:
				sawToolCall = true
				idx := ce.ToolCallIndex
				tool[idx] = &toolCallAccumulator{ID: ce.ToolCallID, Name: ce.ToolCallName, NameEmitted: ce.ToolCallName != ""}
				i := idx
				if !sendDelta(wireformat.ChatDelta{ToolCalls: []wireformat.ChatToolCall{{
					Index: &i, ID: ce.ToolCallID, Type: "function",
					Function: wireformat.ChatToolCallFunc{Name: ce.ToolCallName},
				}}}) {
					return
				}
			case KindToolArgsDelta:
				acc := tool[ce.ToolCallIndex]
				if acc == nil {
					continue
				}
				acc.Args += ce.ArgsDelta
				patchName := ""
				if !acc.NameEmitted {
					if guess := inferToolName(acc.Args, tools); guess != "" {
						acc.Name = guess
						acc.NameEmitted = true
						patchName = guess
					}
				}
				i := ce.ToolCallIndex
				fn := wireformat.ChatToolCallFunc{Arguments: ce.ArgsDelta}
				if patchName != "" {
					fn.Name = patchName
				}
				if !sendDelta(wireformat.ChatDelta{ToolCalls: []wireformat.ChatToolCall{{Index: &i, Function: fn}}}) {
					return
				}
			case KindToolUseStop:
				acc := tool[ce.ToolCallIndex]
				if acc != nil && !acc.NameEmitted {
					// name never resolved; emit a trailing patch chunk with
					// whatever empty/best-effort name we have so the client
					// at least sees a well-formed tool_calls entry.
					i := ce.ToolCallIndex
					sendDelta(wireformat.ChatDelta{ToolCalls: []wireformat.ChatToolCall{{Index: &i, Function: wireformat.ChatToolCallFunc{Name: acc.Name}}}})
				}
			case KindStop:
				finish := ce.FinishReason
				if sawToolCall {
					finish = "tool_calls"
				} else if finish == "" {
					finish = "stop"
				}
				c := base()
				c.Choices = []wireformat.ChatChoice{{Index: 0, Delta: &wireformat.ChatDelta{}, FinishReason: &finish}}
				if !yield(c, nil) {
					return
				}
			case KindUsage:
				if usageSent || ce.Usage == nil {
					continue
				}
				usageSent = true
				u := wireformat.Usage{
					InputTokens: ce.Usage.InputTokens, OutputTokens: ce.Usage.OutputTokens,
					CacheReadInputTokens: ce.Usage.CacheReadInputTokens, ReasoningTokens: ce.Usage.ReasoningTokens,
				}
				c := base()
				c.Usage = u.ToChatUsage()
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}

// canonicalToResponses re-serializes canonical events as Responses API
// events. Every event carries a strictly increasing sequence_number, per the
// ordering rule that applies only when the sink is Responses.
func canonicalToResponses(events iter.Seq2[CanonicalEvent, error], id string, tools []RecordedTool) iter.Seq2[*wireformat.ResponsesStreamEvent, error] {
	return func(yield func(*wireformat.ResponsesStreamEvent, error) bool) {
		seq := 0
		outputIndex := -1
		textOpen := false
		reasoningOpen := false
		tool := map[int]*toolCallAccumulator{}
		toolItemID := map[int]string{}
		sawToolCall := false
		pendingStatus := ""

		emit := func(e *wireformat.ResponsesStreamEvent) bool {
			seq++
			e.SequenceNumber = seq
			return yield(e, nil)
		}

		next, stopPull := iter.Pull2(events)
		defer stopPull()
		model := ""
		first, hasFirst := CanonicalEvent{}, false
		if ce, err, ok := next(); ok {
			if err != nil {
				yield(nil, err)
				return
			}
			if ce.Kind == KindStart {
				model = ce.Model
			} else {
				first, hasFirst = ce, true
			}
		}

		if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventCreated, Response: &wireformat.ResponsesResponse{ID: id, Object: "response", Model: model, Status: "in_progress"}}) {
			return
		}

		rest := func(yield2 func(CanonicalEvent, error) bool) {
			if hasFirst {
				if !yield2(first, nil) {
					return
				}
			}
			for {
				ce, err, ok := next()
				if !ok {
					return
				}
				if !yield2(ce, err) {
					return
				}
			}
		}

		for ce, err := range rest {
			if err != nil {
				yield(nil, err)
				return
			}
			switch ce.Kind {
			case KindTextDelta:
				if !textOpen {
					outputIndex++
					textOpen = true
					if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventOutputItemAdded, OutputIndex: outputIndex, Item: &wireformat.ResponsesItem{Type: "message", Role: "assistant"}}) {
						return
					}
				}
				if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventOutputTextDelta, OutputIndex: outputIndex, Delta: ce.TextDelta}) {
					return
				}
			case KindThinkingDelta:
				if !reasoningOpen {
					outputIndex++
					reasoningOpen = true
					if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventOutputItemAdded, OutputIndex: outputIndex, Item: &wireformat.ResponsesItem{Type: "reasoning"}}) {
						return
					}
				}
				if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventReasoningSummaryDelta, OutputIndex: outputIndex, Delta: ce.ThinkingDelta}) {
					return
				}
			case KindThinkingSignature:
				// carried on the item's encrypted_content at output_item.done; nothing streams mid-block
				if reasoningOpen {
					reasoningOpen = false
					if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventOutputItemDone, OutputIndex: outputIndex, Item: &wireformat.ResponsesItem{Type: "reasoning", EncryptedContent: ce.ThinkingSignature}}) {
						return
					}
				}
			case KindToolUseStart:
				sawToolCall = true
				outputIndex++
				itemID := fmt.Sprintf("fc_%d", outputIndex)
				toolItemID[ce.ToolCallIndex] = itemID
				tool[ce.ToolCallIndex] = &toolCallAccumulator{ID: ce.ToolCallID, Name: ce.ToolCallName}
				if !emit(&wireformat.ResponsesStreamEvent{
					Type: wireformat.RespEventOutputItemAdded, OutputIndex: outputIndex,
					Item: &wireformat.ResponsesItem{Type: "function_call", ID: itemID, CallID: ce.ToolCallID, Name: ce.ToolCallName},
				}) {
					return
				}
			case KindToolArgsDelta:
				acc := tool[ce.ToolCallIndex]
				if acc == nil {
					continue
				}
				acc.Args += ce.ArgsDelta
				if acc.Name == "" {
					if guess := inferToolName(acc.Args, tools); guess != "" {
						acc.Name = guess
					}
				}
				if !emit(&wireformat.ResponsesStreamEvent{Type: wireformat.RespEventFunctionArgsDelta, ItemID: toolItemID[ce.ToolCallIndex], Delta: ce.ArgsDelta}) {
					return
				}
			case KindToolUseStop:
				acc := tool[ce.ToolCallIndex]
				if acc == nil {
					continue
				}
				if !emit(&wireformat.ResponsesStreamEvent{
					Type: wireformat.RespEventOutputItemDone,
					Item: &wireformat.ResponsesItem{Type: "function_call", ID: toolItemID[ce.ToolCallIndex], CallID: acc.ID, Name: acc.Name, Arguments: acc.Args},
				}) {
					return
				}
			case KindStop:
				pendingStatus = "completed"
				if ce.FinishReason == "length" {
					pendingStatus = "incomplete"
				}
			case KindUsage:
				status := pendingStatus
				if status == "" {
					status = "completed"
				}
				var usage *wireformat.ResponsesUsage
				if ce.Usage != nil {
					anth := wireformat.Usage{
						InputTokens: ce.Usage.InputTokens, OutputTokens: ce.Usage.OutputTokens,
						CacheReadInputTokens: ce.Usage.CacheReadInputTokens, ReasoningTokens: ce.Usage.ReasoningTokens,
					}
					usage = anth.ToResponsesUsage()
				}
				if !emit(&wireformat.ResponsesStreamEvent{
					Type: wireformat.RespEventCompleted,
					Response: &wireformat.ResponsesResponse{ID: id, Object: "response", Model: model, Status: status, Usage: usage},
				}) {
					return
				}
				_ = sawToolCall
			}
		}
	}
}
