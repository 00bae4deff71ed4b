package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// dataReplacer escapes embedded newlines so multi-line payloads stay on
// well-formed "data:" continuation lines.
var dataReplacer = strings.NewReplacer(
	"\n", "\ndata: ",
	"\r", "\\r",
)

var (
	sseEventPrefix = []byte("event: ")
	sseDataPrefix  = []byte("data: ")
	sseIDPrefix    = []byte("id: ")
	sseNewline     = []byte("\n")
	sseTerminator  = []byte("\n\n")
)

// Mode selects which fields Writer emits per message.
type Mode int

const (
	// ModeDataOnly writes only "data:" lines, as OpenAI Chat Completions and
	// Responses streams do.
	ModeDataOnly Mode = iota
	// ModeNamedEvent additionally writes "event: <name>" before the data
	// line, as Anthropic's Messages stream does.
	ModeNamedEvent
)

// Writer streams Events to an http.ResponseWriter, flushing after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mode    Mode
}

// NewWriter sets the standard SSE response headers and returns a Writer in
// the given Mode. Returns an error if w does not support flushing, since a
// non-flushing writer would buffer the whole stream and defeat the point.
func NewWriter(w http.ResponseWriter, mode Mode) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: ResponseWriter does not implement http.Flusher")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream;charset=utf-8")
	h.Set("Connection", "keep-alive")
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", "no-cache")
	}
	return &Writer{w: w, flusher: flusher, mode: mode}, nil
}

// WriteJSON marshals v and writes it as the data payload of an Event with
// the given event name (ignored outside ModeNamedEvent).
func (w *Writer) WriteJSON(eventName string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	return w.WriteEvent(Event{Name: eventName, Data: string(data)})
}

// WriteEvent writes a pre-built Event, honoring the Writer's Mode.
func (w *Writer) WriteEvent(ev Event) error {
	if w.mode == ModeNamedEvent && ev.Name != "" {
		if _, err := w.w.Write(sseEventPrefix); err != nil {
			return err
		}
		if _, err := w.w.Write([]byte(ev.Name)); err != nil {
			return err
		}
		if _, err := w.w.Write(sseNewline); err != nil {
			return err
		}
	}
	if ev.ID != "" {
		if _, err := w.w.Write(sseIDPrefix); err != nil {
			return err
		}
		if _, err := w.w.Write([]byte(ev.ID)); err != nil {
			return err
		}
		if _, err := w.w.Write(sseNewline); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(sseDataPrefix); err != nil {
		return err
	}
	if _, err := dataReplacer.WriteString(w.w, ev.Data); err != nil {
		return err
	}
	if _, err := w.w.Write(sseTerminator); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// WriteDone writes the "[DONE]" sentinel used by OpenAI-compatible sinks.
func (w *Writer) WriteDone() error {
	return w.WriteEvent(Done)
}
