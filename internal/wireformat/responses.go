package wireformat

import "encoding/json"

// ResponsesRequest is an OpenAI Responses API request.
type ResponsesRequest struct {
	Model              string            `json:"model"`
	Input              []ResponsesItem   `json:"input"`
	Instructions       string            `json:"instructions,omitempty"`
	Stream             bool              `json:"stream,omitempty"`
	Store              bool              `json:"store,omitempty"`
	Background         bool              `json:"background,omitempty"`
	PreviousResponseID string            `json:"previous_response_id,omitempty"`
	MaxOutputTokens    *int              `json:"max_output_tokens,omitempty"`
	Tools              []ResponsesTool   `json:"tools,omitempty"`
	ToolChoice         json.RawMessage   `json:"tool_choice,omitempty"`
	Reasoning          *ResponsesReasoning `json:"reasoning,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type ResponsesReasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ResponsesItem is one element of the Responses API "input"/"output" array:
// a message, a function_call, a function_call_output, or a reasoning item,
// discriminated by Type.
type ResponsesItem struct {
	Type string `json:"type"` // "message" | "function_call" | "function_call_output" | "reasoning"
	ID   string `json:"id,omitempty"`

	// message
	Role    string              `json:"role,omitempty"`
	Content []ResponsesContent  `json:"content,omitempty"`

	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// function_call_output
	Output string `json:"output,omitempty"`

	// reasoning
	Summary []ResponsesSummaryPart `json:"summary,omitempty"`
	EncryptedContent string `json:"encrypted_content,omitempty"`
}

type ResponsesSummaryPart struct {
	Type string `json:"type"` // "summary_text"
	Text string `json:"text"`
}

// ResponsesContent is the tagged union of message content parts.
type ResponsesContent struct {
	Type string `json:"type"` // "input_text" | "output_text" | "input_image" | "refusal"
	Text string `json:"text,omitempty"`
}

type ResponsesTool struct {
	Type        string          `json:"type"` // "function"
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ResponsesResponse is a unary Responses API response.
type ResponsesResponse struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"` // "response"
	CreatedAt int64            `json:"created_at"`
	Status    string           `json:"status"` // "completed"|"in_progress"|"incomplete"|"failed"
	Model     string           `json:"model"`
	Output    []ResponsesItem  `json:"output"`
	Usage     *ResponsesUsage  `json:"usage,omitempty"`
}

type ResponsesUsage struct {
	InputTokens         int                      `json:"input_tokens"`
	OutputTokens        int                      `json:"output_tokens"`
	TotalTokens         int                      `json:"total_tokens"`
	InputTokensDetails  *ResponsesInputDetails   `json:"input_tokens_details,omitempty"`
	OutputTokensDetails *ResponsesOutputDetails  `json:"output_tokens_details,omitempty"`
}

type ResponsesInputDetails struct {
	CachedTokens int `json:"cached_tokens,omitempty"`
}

type ResponsesOutputDetails struct {
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
}

// Responses API streaming event discriminators (semantic, typed event per kind).
const (
	RespEventCreated              = "response.created"
	RespEventInProgress            = "response.in_progress"
	RespEventOutputItemAdded       = "response.output_item.added"
	RespEventOutputItemDone        = "response.output_item.done"
	RespEventOutputTextDelta       = "response.output_text.delta"
	RespEventOutputTextDone        = "response.output_text.done"
	RespEventFunctionArgsDelta     = "response.function_call_arguments.delta"
	RespEventFunctionArgsDone      = "response.function_call_arguments.done"
	RespEventReasoningSummaryDelta = "response.reasoning_summary_text.delta"
	RespEventCompleted             = "response.completed"
	RespEventFailed                = "response.failed"
)

// ResponsesStreamEvent is the tagged union of Responses SSE payloads.
type ResponsesStreamEvent struct {
	Type           string             `json:"type"`
	SequenceNumber int                `json:"sequence_number"`
	Response       *ResponsesResponse `json:"response,omitempty"`
	OutputIndex    int                `json:"output_index,omitempty"`
	Item           *ResponsesItem     `json:"item,omitempty"`
	ItemID         string             `json:"item_id,omitempty"`
	ContentIndex   int                `json:"content_index,omitempty"`
	Delta          string             `json:"delta,omitempty"`
	Text           string             `json:"text,omitempty"`
}
