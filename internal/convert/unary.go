package convert

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hllvc/llmproxy/internal/wireformat"
)

// ---------------------------------------------------------------------
// Anthropic Messages -> OpenAI Chat Completions
// ---------------------------------------------------------------------

// AnthropicRequestToChat rewrites an Anthropic Messages request into Chat
// Completions form: system blocks hoist to a leading "system" message;
// content blocks flatten per the mapping in the format-converter notes.
func AnthropicRequestToChat(req *wireformat.MessageRequest) (*wireformat.ChatCompletionRequest, error) {
	out := &wireformat.ChatCompletionRequest{
		Model:     req.Model,
		Stream:    req.Stream,
		MaxTokens: nonZeroIntPtr(req.MaxTokens),
	}
	if req.Temperature != nil {
		out.Temperature = req.Temperature
	}
	if req.TopP != nil {
		out.TopP = req.TopP
	}
	out.Stop = req.StopSequences

	for _, s := range req.System {
		out.Messages = append(out.Messages, wireformat.ChatMessage{Role: "system", Content: jsonString(s.Text)})
	}
	for _, m := range req.Messages {
		msgs, err := anthropicMessageToChat(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireformat.ChatTool{
			Type: "function",
			Function: wireformat.ChatToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if req.ToolChoice != nil {
		out.ToolChoice = toolChoiceToChat(req.ToolChoice)
	}
	return out, nil
}

func anthropicMessageToChat(m wireformat.AnthropicMsg) ([]wireformat.ChatMessage, error) {
	var out []wireformat.ChatMessage
	var textParts []string
	var toolCalls []wireformat.ChatToolCall

	flushAssistant := func() {
		if len(textParts) == 0 && len(toolCalls) == 0 {
			return
		}
		out = append(out, wireformat.ChatMessage{
			Role:      "assistant",
			Content:   jsonString(joinNonEmpty(textParts)),
			ToolCalls: toolCalls,
		})
		textParts = nil
		toolCalls = nil
	}

	for _, b := range m.Content {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "thinking":
			textParts = append(textParts, RenderThinking(b.Thinking, b.Signature))
		case "tool_use":
			if m.Role == "assistant" {
				toolCalls = append(toolCalls, wireformat.ChatToolCall{
					ID:   b.ID,
					Type: "function",
					Function: wireformat.ChatToolCallFunc{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})
			}
		case "tool_result":
			flushAssistant()
			out = append(out, wireformat.ChatMessage{
				Role:       "tool",
				ToolCallID: b.ToolUseID,
				Content:    jsonString(b.Content),
			})
		case "image":
			textParts = append(textParts, "[image omitted]")
		}
	}
	if m.Role == "assistant" {
		flushAssistant()
	} else if len(textParts) > 0 {
		out = append(out, wireformat.ChatMessage{Role: "user", Content: jsonString(joinNonEmpty(textParts))})
	}
	return out, nil
}

// AnthropicResponseToChat converts a unary Anthropic response into a Chat
// Completions response.
func AnthropicResponseToChat(resp *wireformat.MessageResponse) *wireformat.ChatCompletionResponse {
	msg := &wireformat.ChatMessage{Role: "assistant"}
	var text string
	hasToolCall := false
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			text += b.Text
		case "thinking":
			text += RenderThinking(b.Thinking, b.Signature)
		case "tool_use":
			hasToolCall = true
			msg.ToolCalls = append(msg.ToolCalls, wireformat.ChatToolCall{
				ID:   b.ID,
				Type: "function",
				Function: wireformat.ChatToolCallFunc{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		}
	}
	msg.Content = jsonString(text)
	finish := finishReasonToChat(resp.StopReason, hasToolCall)
	return &wireformat.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: []wireformat.ChatChoice{{Index: 0, Message: msg, FinishReason: &finish}},
		Usage:   resp.Usage.ToChatUsage(),
	}
}

func finishReasonToChat(anthropicStop string, hasToolCall bool) string {
	if hasToolCall {
		return "tool_calls"
	}
	switch anthropicStop {
	case "max_tokens":
		return "length"
	case "stop_sequence", "end_turn", "":
		return "stop"
	default:
		return "stop"
	}
}

// ---------------------------------------------------------------------
// OpenAI Chat Completions -> Anthropic Messages
// ---------------------------------------------------------------------

// ChatRequestToAnthropic rewrites a Chat Completions request into Anthropic
// Messages form: every system/developer message hoists into the top-level
// "system" array; adjacent user-role messages (including flattened
// tool-result messages) merge into one user message per Anthropic's strict
// role-alternation requirement.
func ChatRequestToAnthropic(req *wireformat.ChatCompletionRequest) (*wireformat.MessageRequest, error) {
	out := &wireformat.MessageRequest{
		Model:         req.Model,
		Stream:        req.Stream,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}
	out.MaxTokens = 8192
	if req.MaxCompletionTokens != nil {
		out.MaxTokens = *req.MaxCompletionTokens
	} else if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var converted []wireformat.AnthropicMsg
	for _, m := range req.Messages {
		switch m.Role {
		case "system", "developer":
			out.System = append(out.System, wireformat.TextBlock{Type: "text", Text: textFromRawContent(m.Content)})
		case "user":
			converted = append(converted, wireformat.AnthropicMsg{Role: "user", Content: chatUserContentToAnthropic(m)})
		case "assistant":
			converted = append(converted, wireformat.AnthropicMsg{Role: "assistant", Content: chatAssistantContentToAnthropic(m)})
		case "tool":
			converted = append(converted, wireformat.AnthropicMsg{
				Role:    "user",
				Content: []wireformat.ContentBlock{wireformat.NewToolResultBlock(m.ToolCallID, textFromRawContent(m.Content), false)},
			})
		}
	}
	out.Messages = mergeConsecutiveToolTurns(converted)

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireformat.ToolDef{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	if len(req.ToolChoice) > 0 {
		out.ToolChoice = toolChoiceFromChat(req.ToolChoice)
	}
	return out, nil
}

func chatUserContentToAnthropic(m wireformat.ChatMessage) []wireformat.ContentBlock {
	return []wireformat.ContentBlock{wireformat.NewTextBlock(textFromRawContent(m.Content))}
}

func chatAssistantContentToAnthropic(m wireformat.ChatMessage) []wireformat.ContentBlock {
	var blocks []wireformat.ContentBlock
	text := textFromRawContent(m.Content)
	if text != "" {
		runs, trailing := SplitThinking(text)
		for _, r := range runs {
			if r.PrecedingText != "" {
				blocks = append(blocks, wireformat.NewTextBlock(r.PrecedingText))
			}
			blocks = append(blocks, wireformat.NewThinkingBlock(r.Thinking, r.Signature))
		}
		if trailing != "" {
			blocks = append(blocks, wireformat.NewTextBlock(trailing))
		}
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, wireformat.NewToolUseBlock(toolCallID(tc.ID), tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	return blocks
}

// mergeConsecutiveToolTurns merges every run of adjacent user messages (such
// as those produced by tool-result flattening) into one, since Anthropic
// requires strict user/assistant alternation and a run of tool messages must
// collapse into one user turn.
func mergeConsecutiveToolTurns(msgs []wireformat.AnthropicMsg) []wireformat.AnthropicMsg {
	var out []wireformat.AnthropicMsg
	for _, m := range msgs {
		if m.Role == "user" && len(out) > 0 && out[len(out)-1].Role == "user" {
			out[len(out)-1].Content = append(out[len(out)-1].Content, m.Content...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// ChatResponseToAnthropic converts a unary Chat Completions response into an
// Anthropic Messages response.
func ChatResponseToAnthropic(resp *wireformat.ChatCompletionResponse) (*wireformat.MessageResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("convert: chat completion response has no choices")
	}
	choice := resp.Choices[0]
	var blocks []wireformat.ContentBlock
	if choice.Message != nil {
		text := textFromRawContent(choice.Message.Content)
		runs, trailing := SplitThinking(text)
		for _, r := range runs {
			if r.PrecedingText != "" {
				blocks = append(blocks, wireformat.NewTextBlock(r.PrecedingText))
			}
			blocks = append(blocks, wireformat.NewThinkingBlock(r.Thinking, r.Signature))
		}
		if trailing != "" {
			blocks = append(blocks, wireformat.NewTextBlock(trailing))
		}
		for _, tc := range choice.Message.ToolCalls {
			blocks = append(blocks, wireformat.NewToolUseBlock(toolCallID(tc.ID), tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
		}
	}
	stopReason := "end_turn"
	if choice.FinishReason != nil {
		stopReason = finishReasonToAnthropic(*choice.FinishReason)
	}
	var usage wireformat.Usage
	if resp.Usage != nil {
		usage = wireformat.UsageFromChat(resp.Usage)
	}
	return &wireformat.MessageResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    blocks,
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

func finishReasonToAnthropic(r string) string {
	switch r {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// ---------------------------------------------------------------------
// Anthropic Messages <-> OpenAI Responses
// ---------------------------------------------------------------------

// AnthropicRequestToResponses rewrites an Anthropic request into Responses
// API form.
func AnthropicRequestToResponses(req *wireformat.MessageRequest) (*wireformat.ResponsesRequest, error) {
	out := &wireformat.ResponsesRequest{
		Model:           req.Model,
		Stream:          req.Stream,
		MaxOutputTokens: nonZeroIntPtr(req.MaxTokens),
	}
	for _, s := range req.System {
		out.Instructions = joinNonEmpty([]string{out.Instructions, s.Text})
	}
	for _, m := range req.Messages {
		items, err := anthropicMessageToResponses(m)
		if err != nil {
			return nil, err
		}
		out.Input = append(out.Input, items...)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireformat.ResponsesTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out, nil
}

func anthropicMessageToResponses(m wireformat.AnthropicMsg) ([]wireformat.ResponsesItem, error) {
	var items []wireformat.ResponsesItem
	var content []wireformat.ResponsesContent
	textType := "input_text"
	if m.Role == "assistant" {
		textType = "output_text"
	}
	flush := func() {
		if len(content) > 0 {
			items = append(items, wireformat.ResponsesItem{Type: "message", Role: m.Role, Content: content})
			content = nil
		}
	}
	for _, b := range m.Content {
		switch b.Type {
		case "text":
			content = append(content, wireformat.ResponsesContent{Type: textType, Text: b.Text})
		case "thinking":
			flush()
			items = append(items, wireformat.ResponsesItem{
				Type:    "reasoning",
				Summary: []wireformat.ResponsesSummaryPart{{Type: "summary_text", Text: b.Thinking}},
				EncryptedContent: b.Signature,
			})
		case "tool_use":
			flush()
			items = append(items, wireformat.ResponsesItem{Type: "function_call", CallID: b.ID, Name: b.Name, Arguments: string(b.Input)})
		case "tool_result":
			flush()
			items = append(items, wireformat.ResponsesItem{Type: "function_call_output", CallID: b.ToolUseID, Output: b.Content})
		}
	}
	flush()
	return items, nil
}

// AnthropicResponseToResponses converts a unary Anthropic response to the
// Responses API response shape.
func AnthropicResponseToResponses(resp *wireformat.MessageResponse) *wireformat.ResponsesResponse {
	var output []wireformat.ResponsesItem
	var content []wireformat.ResponsesContent
	flush := func() {
		if len(content) > 0 {
			output = append(output, wireformat.ResponsesItem{Type: "message", Role: "assistant", Content: content})
			content = nil
		}
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			content = append(content, wireformat.ResponsesContent{Type: "output_text", Text: b.Text})
		case "thinking":
			flush()
			output = append(output, wireformat.ResponsesItem{
				Type:             "reasoning",
				Summary:          []wireformat.ResponsesSummaryPart{{Type: "summary_text", Text: b.Thinking}},
				EncryptedContent: b.Signature,
			})
		case "tool_use":
			flush()
			output = append(output, wireformat.ResponsesItem{Type: "function_call", CallID: b.ID, Name: b.Name, Arguments: string(b.Input)})
		}
	}
	flush()
	return &wireformat.ResponsesResponse{
		ID:     resp.ID,
		Object: "response",
		Status: "completed",
		Model:  resp.Model,
		Output: output,
		Usage:  resp.Usage.ToResponsesUsage(),
	}
}

// ResponsesRequestToAnthropic rewrites a Responses API request into
// Anthropic Messages form.
func ResponsesRequestToAnthropic(req *wireformat.ResponsesRequest) (*wireformat.MessageRequest, error) {
	out := &wireformat.MessageRequest{Model: req.Model, Stream: req.Stream, MaxTokens: 8192}
	if req.MaxOutputTokens != nil {
		out.MaxTokens = *req.MaxOutputTokens
	}
	if req.Instructions != "" {
		out.System = append(out.System, wireformat.TextBlock{Type: "text", Text: req.Instructions})
	}
	for _, item := range req.Input {
		msg, ok, err := responsesItemToAnthropic(item)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Messages = append(out.Messages, msg)
		}
	}
	out.Messages = mergeConsecutiveToolTurns(out.Messages)
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireformat.ToolDef{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return out, nil
}

func responsesItemToAnthropic(item wireformat.ResponsesItem) (wireformat.AnthropicMsg, bool, error) {
	switch item.Type {
	case "message":
		var blocks []wireformat.ContentBlock
		for _, c := range item.Content {
			blocks = append(blocks, wireformat.NewTextBlock(c.Text))
		}
		role := item.Role
		if role == "" {
			role = "user"
		}
		return wireformat.AnthropicMsg{Role: role, Content: blocks}, true, nil
	case "function_call":
		return wireformat.AnthropicMsg{
			Role:    "assistant",
			Content: []wireformat.ContentBlock{wireformat.NewToolUseBlock(item.CallID, item.Name, json.RawMessage(item.Arguments))},
		}, true, nil
	case "function_call_output":
		return wireformat.AnthropicMsg{
			Role:    "user",
			Content: []wireformat.ContentBlock{wireformat.NewToolResultBlock(item.CallID, item.Output, false)},
		}, true, nil
	case "reasoning":
		text := ""
		for _, s := range item.Summary {
			text += s.Text
		}
		return wireformat.AnthropicMsg{
			Role:    "assistant",
			Content: []wireformat.ContentBlock{wireformat.NewThinkingBlock(text, item.EncryptedContent)},
		}, true, nil
	default:
		return wireformat.AnthropicMsg{}, false, nil
	}
}

// ResponsesResponseToAnthropic converts a unary Responses API response into
// an Anthropic Messages response.
func ResponsesResponseToAnthropic(resp *wireformat.ResponsesResponse) *wireformat.MessageResponse {
	var blocks []wireformat.ContentBlock
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				blocks = append(blocks, wireformat.NewTextBlock(c.Text))
			}
		case "reasoning":
			text := ""
			for _, s := range item.Summary {
				text += s.Text
			}
			blocks = append(blocks, wireformat.NewThinkingBlock(text, item.EncryptedContent))
		case "function_call":
			blocks = append(blocks, wireformat.NewToolUseBlock(item.CallID, item.Name, json.RawMessage(item.Arguments)))
		}
	}
	stopReason := "end_turn"
	if resp.Status == "incomplete" {
		stopReason = "max_tokens"
	}
	var usage wireformat.Usage
	if resp.Usage != nil {
		usage = wireformat.UsageFromResponses(resp.Usage)
	}
	return &wireformat.MessageResponse{
		ID:         resp.ID,
		Type:       "message",
		Role:       "assistant",
		Model:      resp.Model,
		Content:    blocks,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// ---------------------------------------------------------------------
// OpenAI Chat Completions <-> OpenAI Responses
// ---------------------------------------------------------------------

// ChatRequestToResponses rewrites a Chat Completions request into the
// Responses API shape.
func ChatRequestToResponses(req *wireformat.ChatCompletionRequest) (*wireformat.ResponsesRequest, error) {
	out := &wireformat.ResponsesRequest{Model: req.Model, Stream: req.Stream}
	if req.MaxCompletionTokens != nil {
		out.MaxOutputTokens = req.MaxCompletionTokens
	} else if req.MaxTokens != nil {
		out.MaxOutputTokens = req.MaxTokens
	}
	if req.ReasoningEffort != "" {
		out.Reasoning = &wireformat.ResponsesReasoning{Effort: req.ReasoningEffort, Summary: "auto"}
	}
	for _, m := range req.Messages {
		if m.Role == "system" || m.Role == "developer" {
			out.Instructions = joinNonEmpty([]string{out.Instructions, textFromRawContent(m.Content)})
			continue
		}
		if m.Role == "tool" {
			out.Input = append(out.Input, wireformat.ResponsesItem{Type: "function_call_output", CallID: m.ToolCallID, Output: textFromRawContent(m.Content)})
			continue
		}
		textType := "input_text"
		if m.Role == "assistant" {
			textType = "output_text"
		}
		if text := textFromRawContent(m.Content); text != "" {
			out.Input = append(out.Input, wireformat.ResponsesItem{
				Type: "message", Role: m.Role,
				Content: []wireformat.ResponsesContent{{Type: textType, Text: text}},
			})
		}
		for _, tc := range m.ToolCalls {
			out.Input = append(out.Input, wireformat.ResponsesItem{Type: "function_call", CallID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireformat.ResponsesTool{Type: "function", Name: t.Function.Name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}
	return out, nil
}

// ChatResponseToResponses converts a unary Chat Completions response into
// the Responses API response shape.
func ChatResponseToResponses(resp *wireformat.ChatCompletionResponse) (*wireformat.ResponsesResponse, error) {
	anthropic, err := ChatResponseToAnthropic(resp)
	if err != nil {
		return nil, err
	}
	return AnthropicResponseToResponses(anthropic), nil
}

// ResponsesRequestToChat rewrites a Responses API request into Chat
// Completions form.
func ResponsesRequestToChat(req *wireformat.ResponsesRequest) (*wireformat.ChatCompletionRequest, error) {
	anthropic, err := ResponsesRequestToAnthropic(req)
	if err != nil {
		return nil, err
	}
	return AnthropicRequestToChat(anthropic)
}

// ResponsesResponseToChat converts a unary Responses API response into a
// Chat Completions response.
func ResponsesResponseToChat(resp *wireformat.ResponsesResponse) *wireformat.ChatCompletionResponse {
	return AnthropicResponseToChat(ResponsesResponseToAnthropic(resp))
}

// ---------------------------------------------------------------------
// shared helpers
// ---------------------------------------------------------------------

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func textFromRawContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			if p.Type == "text" || p.Type == "input_text" || p.Type == "output_text" {
				out += p.Text
			}
		}
		return out
	}
	return ""
}

func joinNonEmpty(parts []string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}

func nonZeroIntPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func toolCallID(id string) string {
	if id != "" {
		return id
	}
	return "toolu_" + uuid.NewString()
}

func toolChoiceToChat(tc *wireformat.ToolChoice) json.RawMessage {
	switch tc.Type {
	case "auto":
		return jsonString("auto")
	case "any":
		return jsonString("required")
	case "tool":
		b, _ := json.Marshal(map[string]any{"type": "function", "function": map[string]string{"name": tc.Name}})
		return b
	}
	return nil
}

func toolChoiceFromChat(raw json.RawMessage) *wireformat.ToolChoice {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "required":
			return &wireformat.ToolChoice{Type: "any"}
		case "none":
			return nil
		default:
			return &wireformat.ToolChoice{Type: "auto"}
		}
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Function.Name != "" {
		return &wireformat.ToolChoice{Type: "tool", Name: obj.Function.Name}
	}
	return &wireformat.ToolChoice{Type: "auto"}
}
