// Package sse implements a Server-Sent Events parser and serializer shared
// by every upstream/downstream pairing the proxy dispatches to. The parser
// tolerates arbitrary chunk boundaries from the network (a single SSE field
// line may arrive split across several Read calls); the serializer supports
// both Anthropic's "event: <type>\ndata: <json>" framing and OpenAI's
// data-only framing from one Event value.
package sse

import "strings"

// Event is one parsed (or to-be-written) SSE message. Name is empty for
// formats that never send an "event:" field (OpenAI Chat Completions,
// Responses); Data holds the field's raw, already-unescaped payload —
// multiple "data:" lines are joined with "\n" per the SSE spec.
type Event struct {
	Name string
	Data string
	ID   string
}

// IsDone reports whether this event is the OpenAI-style sentinel that
// terminates a stream ("data: [DONE]").
func (e Event) IsDone() bool {
	return strings.TrimSpace(e.Data) == "[DONE]"
}

// Done is the sentinel terminal event written by OpenAI-compatible sinks.
var Done = Event{Data: "[DONE]"}
