package proxy

import (
	"github.com/hllvc/llmproxy/internal/sse"
)

// Format identifies one of the three client-facing wire formats a route can
// speak, and the native format a provider adapter's upstream expects.
type Format string

const (
	FormatAnthropic Format = "anthropic"
	FormatChat      Format = "chat_completions"
	FormatResponses Format = "responses"
)

// sseMode returns the SSE framing convention real upstreams use for f:
// Anthropic names every event, OpenAI Chat Completions and Responses stream
// data-only lines.
func (f Format) sseMode() sse.Mode {
	if f == FormatAnthropic {
		return sse.ModeNamedEvent
	}
	return sse.ModeDataOnly
}
