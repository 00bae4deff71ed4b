package wireformat

// ToChatUsage remaps Anthropic usage accounting onto the Chat Completions shape.
func (u Usage) ToChatUsage() *ChatUsage {
	cu := &ChatUsage{
		PromptTokens:     u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens + u.OutputTokens,
	}
	if u.CacheReadInputTokens > 0 {
		cu.PromptTokensDetails = &PromptTokensDetails{CachedTokens: u.CacheReadInputTokens}
	}
	if u.ReasoningTokens > 0 {
		cu.CompletionTokensDetails = &CompletionTokensDetails{ReasoningTokens: u.ReasoningTokens}
	}
	return cu
}

// ToResponsesUsage remaps Anthropic usage accounting onto the Responses shape.
func (u Usage) ToResponsesUsage() *ResponsesUsage {
	ru := &ResponsesUsage{
		InputTokens:  u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens,
		OutputTokens: u.OutputTokens,
	}
	ru.TotalTokens = ru.InputTokens + ru.OutputTokens
	if u.CacheReadInputTokens > 0 {
		ru.InputTokensDetails = &ResponsesInputDetails{CachedTokens: u.CacheReadInputTokens}
	}
	if u.ReasoningTokens > 0 {
		ru.OutputTokensDetails = &ResponsesOutputDetails{ReasoningTokens: u.ReasoningTokens}
	}
	return ru
}

// UsageFromChat converts an inbound Chat Completions usage block back to the
// canonical Anthropic-shaped accounting used internally by the converters.
func UsageFromChat(cu *ChatUsage) Usage {
	if cu == nil {
		return Usage{}
	}
	u := Usage{
		InputTokens:  cu.PromptTokens,
		OutputTokens: cu.CompletionTokens,
	}
	if cu.PromptTokensDetails != nil {
		u.CacheReadInputTokens = cu.PromptTokensDetails.CachedTokens
		u.InputTokens -= u.CacheReadInputTokens
	}
	if cu.CompletionTokensDetails != nil {
		u.ReasoningTokens = cu.CompletionTokensDetails.ReasoningTokens
	}
	return u
}

// UsageFromResponses converts an inbound Responses usage block.
func UsageFromResponses(ru *ResponsesUsage) Usage {
	if ru == nil {
		return Usage{}
	}
	u := Usage{
		InputTokens:  ru.InputTokens,
		OutputTokens: ru.OutputTokens,
	}
	if ru.InputTokensDetails != nil {
		u.CacheReadInputTokens = ru.InputTokensDetails.CachedTokens
		u.InputTokens -= u.CacheReadInputTokens
	}
	if ru.OutputTokensDetails != nil {
		u.ReasoningTokens = ru.OutputTokensDetails.ReasoningTokens
	}
	return u
}
