// Package wireformat defines the typed request, response, and stream-event
// shapes for the three wire formats the proxy understands: Anthropic
// Messages, OpenAI Chat Completions, and OpenAI Responses.
//
// Every polymorphic shape (content blocks, stream events) carries an
// explicit "type" discriminator. Only the fields declared on each struct are
// kept; undeclared fields in an incoming payload are dropped on decode.
package wireformat

import "encoding/json"

// MessageRequest is an Anthropic Messages API request.
type MessageRequest struct {
	Model         string           `json:"model"`
	Messages      []AnthropicMsg   `json:"messages"`
	System        []TextBlock      `json:"system,omitempty"`
	MaxTokens     int              `json:"max_tokens"`
	Tools         []ToolDef        `json:"tools,omitempty"`
	ToolChoice    *ToolChoice      `json:"tool_choice,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Metadata      *json.RawMessage `json:"metadata,omitempty"`
}

// AnthropicMsg is a single turn in the Anthropic Messages conversation array.
type AnthropicMsg struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// MessageResponse is an Anthropic Messages API unary response.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // "message"
	Role         string         `json:"role"` // "assistant"
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence *string        `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Usage is Anthropic's token accounting shape; the zero value round-trips
// cleanly to/from the OpenAI shapes (see usage.go).
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	ReasoningTokens          int `json:"-"` // carried internally, surfaced per-sink (see usage.go)
}

// ToolDef is an Anthropic tool declaration.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolChoice mirrors Anthropic's tool_choice union: {"type": "auto"|"any"|"tool", "name"?}.
type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

// ContentBlock is the tagged union of assistant/user message content.
// Discriminated on Type; exactly one of the typed payload fields is set
// per the invariant kept by the constructors below; decoding does not check it.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	// tool_result content is either a bare string or nested blocks; Content
	// holds the already-flattened text form used throughout this proxy.
	Content string `json:"content,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource is Anthropic's inline/base64 image content descriptor.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// TextBlock is the subset of ContentBlock used for system prompt entries.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

func NewToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: "tool_use", ID: id, Name: name, Input: input}
}

func NewToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: content, IsError: isError}
}

func NewThinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: "thinking", Thinking: thinking, Signature: signature}
}

// Anthropic stream event discriminators (§3).
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
)

// Delta type discriminators within content_block_delta.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
)

// StreamEvent is the tagged union of every Anthropic SSE payload shape the
// converter needs to read or write. Only fields relevant to Type are set.
type StreamEvent struct {
	Type string `json:"type"`

	// message_start / message_delta
	Message *MessageResponse `json:"message,omitempty"`
	Delta   *MessageDelta    `json:"delta,omitempty"`
	Usage   *Usage           `json:"usage,omitempty"`

	// content_block_start / content_block_stop
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// content_block_delta
	ContentDelta *ContentDelta `json:"-"`
}

// MessageDelta carries the terminal stop_reason/stop_sequence fields of
// message_delta events; the event's usage is on StreamEvent.Usage.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason,omitempty"`
	StopSequence *string `json:"stop_sequence,omitempty"`
}

// ContentDelta is the payload of a content_block_delta event.
type ContentDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	Thinking     string `json:"thinking,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

// MarshalJSON flattens ContentDelta into the "delta" field for content_block_delta events.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	type alias StreamEvent
	a := alias(e)
	if e.Type == EventContentBlockDelta && e.ContentDelta != nil {
		raw, err := json.Marshal(e.ContentDelta)
		if err != nil {
			return nil, err
		}
		a.Delta = nil
		type withRaw struct {
			alias
			Delta json.RawMessage `json:"delta,omitempty"`
		}
		return json.Marshal(withRaw{alias: a, Delta: raw})
	}
	return json.Marshal(a)
}

// UnmarshalJSON reconstructs ContentDelta out of the raw "delta" field for
// content_block_delta events, leaving MessageDelta populated otherwise.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	type alias StreamEvent
	var raw struct {
		alias
		Delta json.RawMessage `json:"delta,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = StreamEvent(raw.alias)
	if len(raw.Delta) == 0 {
		return nil
	}
	if e.Type == EventContentBlockDelta {
		var cd ContentDelta
		if err := json.Unmarshal(raw.Delta, &cd); err != nil {
			return err
		}
		e.ContentDelta = &cd
		return nil
	}
	var md MessageDelta
	if err := json.Unmarshal(raw.Delta, &md); err != nil {
		return err
	}
	e.Delta = &md
	return nil
}
