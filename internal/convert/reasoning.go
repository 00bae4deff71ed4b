// Package convert implements the bidirectional translation between the
// three wire formats the proxy speaks: Anthropic Messages, OpenAI Chat
// Completions, and OpenAI Responses. It exposes six unary functions (one
// per ordered pair of formats) and six streaming generators of the same
// shape, plus the stateful accumulators the streaming direction needs.
package convert

import (
	"fmt"
	"strings"
)

const (
	thinkOpenPrefix = "<thinking"
	thinkOpenClose  = ">"
	thinkClose      = "</thinking>"
)

// RenderThinking serializes a reasoning block as the inline XML tag used by
// sinks that have no native reasoning container (OpenAI Chat Completions
// assistant content). The signature attribute is omitted when empty.
func RenderThinking(thinking, signature string) string {
	var b strings.Builder
	b.WriteString(thinkOpenPrefix)
	if signature != "" {
		b.WriteString(fmt.Sprintf(" signature=%q", signature))
	}
	b.WriteString(thinkOpenClose)
	b.WriteString(thinking)
	b.WriteString(thinkClose)
	return b.String()
}

// ThinkingRun is one parsed <thinking>...</thinking> span plus the plain
// text immediately preceding it.
type ThinkingRun struct {
	PrecedingText string
	Thinking      string
	Signature     string
}

// SplitThinking scans text for a leading run of thinking/plain segments and
// returns the parsed runs plus any trailing plain text after the last
// closing tag. Nested <thinking> tags are not permitted: a second opener
// encountered while already inside a block is treated as literal text, per
// the reasoning serialization rules.
func SplitThinking(text string) (runs []ThinkingRun, trailing string) {
	rest := text
	for {
		openIdx := strings.Index(rest, thinkOpenPrefix)
		if openIdx < 0 {
			trailing = rest
			return runs, trailing
		}
		// the opener runs from "<thinking" to the next '>'; a '<' before that '>' means no opener
		tagEnd := findTagEnd(rest, openIdx)
		if tagEnd < 0 {
			trailing = rest
			return runs, trailing
		}
		preceding := rest[:openIdx]
		sig := extractSignature(rest[openIdx:tagEnd])
		body := rest[tagEnd+1:]
		closeIdx := strings.Index(body, thinkClose)
		if closeIdx < 0 {
			// unterminated block: treat opener as literal, stop parsing further
			trailing = preceding + rest[openIdx:]
			return runs, trailing
		}
		inner := body[:closeIdx]
		// nested opener inside inner is literal text, not a new run
		runs = append(runs, ThinkingRun{PrecedingText: preceding, Thinking: inner, Signature: sig})
		rest = body[closeIdx+len(thinkClose):]
	}
}

func findTagEnd(s string, openIdx int) int {
	for i := openIdx + len(thinkOpenPrefix); i < len(s); i++ {
		switch s[i] {
		case '>':
			return i
		case '<':
			return -1
		}
	}
	return -1
}

func extractSignature(tag string) string {
	const marker = `signature="`
	idx := strings.Index(tag, marker)
	if idx < 0 {
		return ""
	}
	rest := tag[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// thinkingStreamState tracks a partially-received inline thinking tag across
// chunk boundaries for the streaming direction, where an opener or closer
// may be split across two upstream deltas.
type thinkingStreamState struct {
	open    bool
	pending string // unmatched buffered text that might be a partial tag
}

// feed appends delta text and returns any complete, safe-to-emit plain text
// plus any complete thinking text discovered. It is deliberately
// conservative: text that might be a partial "<thinking" or "</thinking>"
// tag is held back until disambiguated by more input.
func (s *thinkingStreamState) feed(delta string) (plain, thinking string) {
	s.pending += delta
	for {
		if !s.open {
			idx := strings.Index(s.pending, thinkOpenPrefix)
			if idx < 0 {
				safe, hold := splitSafeSuffix(s.pending, thinkOpenPrefix)
				plain += safe
				s.pending = hold
				return plain, thinking
			}
			tagEnd := findTagEnd(s.pending, idx)
			if tagEnd < 0 {
				plain += s.pending[:idx]
				s.pending = s.pending[idx:]
				return plain, thinking
			}
			plain += s.pending[:idx]
			s.open = true
			s.pending = s.pending[tagEnd+1:]
			continue
		}
		idx := strings.Index(s.pending, thinkClose)
		if idx < 0 {
			safe, hold := splitSafeSuffix(s.pending, thinkClose)
			thinking += safe
			s.pending = hold
			return plain, thinking
		}
		thinking += s.pending[:idx]
		s.open = false
		s.pending = s.pending[idx+len(thinkClose):]
	}
}

// splitSafeSuffix returns the prefix of s guaranteed not to be part of an
// occurrence of marker straddling a future chunk, and the held-back suffix.
func splitSafeSuffix(s, marker string) (safe, hold string) {
	maxHold := len(marker) - 1
	if maxHold > len(s) {
		maxHold = len(s)
	}
	for n := maxHold; n > 0; n-- {
		if strings.HasPrefix(marker, s[len(s)-n:]) {
			return s[:len(s)-n], s[len(s)-n:]
		}
	}
	return s, ""
}
