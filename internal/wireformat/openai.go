package wireformat

import "encoding/json"

// ChatCompletionRequest is an OpenAI Chat Completions API request.
type ChatCompletionRequest struct {
	Model               string                  `json:"model"`
	Messages            []ChatMessage           `json:"messages"`
	Stream              bool                    `json:"stream,omitempty"`
	StreamOptions       *StreamOptions          `json:"stream_options,omitempty"`
	Temperature         *float64                `json:"temperature,omitempty"`
	TopP                *float64                `json:"top_p,omitempty"`
	MaxTokens           *int                    `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int                    `json:"max_completion_tokens,omitempty"`
	Stop                []string                `json:"stop,omitempty"`
	Tools               []ChatTool              `json:"tools,omitempty"`
	ToolChoice          json.RawMessage         `json:"tool_choice,omitempty"`
	ParallelToolCalls   *bool                   `json:"parallel_tool_calls,omitempty"`
	ReasoningEffort     string                  `json:"reasoning_effort,omitempty"`
	User                string                  `json:"user,omitempty"`
	SafetyIdentifier    string                  `json:"safety_identifier,omitempty"`
	ServiceTier         string                  `json:"service_tier,omitempty"`
	WebSearchOptions    json.RawMessage         `json:"web_search_options,omitempty"`
	ExtraBody           map[string]any          `json:"-"`
}

// StreamOptions controls inclusion of a final usage-only chunk.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatMessage is one entry of the Chat Completions "messages" array.
// Role discriminates; only the fields relevant to Role are populated.
type ChatMessage struct {
	Role       string          `json:"role"` // system|developer|user|assistant|tool
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []ChatToolCall  `json:"tool_calls,omitempty"`
}

// ChatToolCall is an assistant message's function/tool invocation.
type ChatToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"` // "function"
	Function ChatToolCallFunc `json:"function"`
}

type ChatToolCallFunc struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatTool is a Chat Completions tool declaration.
type ChatTool struct {
	Type     string           `json:"type"` // "function"
	Function ChatToolFunction `json:"function"`
}

type ChatToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatCompletionResponse is a unary Chat Completions response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"` // "chat.completion"
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatDelta   `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatDelta is a streaming chunk's incremental content.
type ChatDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionChunk is one "data:" payload of a Chat Completions stream.
type ChatCompletionChunk struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"` // "chat.completion.chunk"
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	Choices           []ChatChoice `json:"choices"`
	Usage             *ChatUsage   `json:"usage,omitempty"`
}

// ChatUsage is the Chat Completions token accounting shape.
type ChatUsage struct {
	PromptTokens            int                      `json:"prompt_tokens"`
	CompletionTokens        int                      `json:"completion_tokens"`
	TotalTokens             int                      `json:"total_tokens"`
	PromptTokensDetails     *PromptTokensDetails     `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionTokensDetails `json:"completion_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
}

type CompletionTokensDetails struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// ChatCompletionErrorResponse is the client-facing error envelope for the
// Chat Completions surface; it also implements error so handlers can
// errors.As it straight out of a converter failure.
type ChatCompletionErrorResponse struct {
	ErrorBody ChatErrorBody `json:"error"`
	HTTPStatus int          `json:"-"`
}

type ChatErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *ChatCompletionErrorResponse) Error() string {
	return e.ErrorBody.Message
}

func NewChatCompletionError(status int, typ, message string) *ChatCompletionErrorResponse {
	return &ChatCompletionErrorResponse{
		HTTPStatus: status,
		ErrorBody:  ChatErrorBody{Message: message, Type: typ},
	}
}
