package wireformat

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateMessageRequest checks the invariants an Anthropic Messages request
// must satisfy before it is handed to a converter: a model, at least one
// message, and a positive max_tokens.
func ValidateMessageRequest(r *MessageRequest) error {
	if r.Model == "" {
		return fmt.Errorf("wireformat: model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("wireformat: messages must not be empty")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("wireformat: max_tokens must be positive")
	}
	for i, m := range r.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			return fmt.Errorf("wireformat: messages[%d].role must be user or assistant, got %q", i, m.Role)
		}
	}
	return nil
}

// ValidateChatCompletionRequest checks the invariants a Chat Completions
// request must satisfy before conversion.
func ValidateChatCompletionRequest(r *ChatCompletionRequest) error {
	if r.Model == "" {
		return fmt.Errorf("wireformat: model is required")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("wireformat: messages must not be empty")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "system", "developer", "user", "assistant", "tool":
		default:
			return fmt.Errorf("wireformat: messages[%d].role %q is not supported", i, m.Role)
		}
		if m.Role == "tool" && m.ToolCallID == "" {
			return fmt.Errorf("wireformat: messages[%d] has role tool but no tool_call_id", i)
		}
	}
	return nil
}

// ValidateResponsesRequest checks the invariants a Responses API request
// must satisfy before conversion.
func ValidateResponsesRequest(r *ResponsesRequest) error {
	if r.Model == "" {
		return fmt.Errorf("wireformat: model is required")
	}
	if len(r.Input) == 0 {
		return fmt.Errorf("wireformat: input must not be empty")
	}
	return nil
}
