package sse

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

// Parse reads r as a sequence of SSE messages, yielding one Event per blank
// line terminated record. It tolerates any read chunking: bufio.Scanner
// buffers across partial lines internally, and a record is emitted only once
// its blank-line terminator has been seen (or, for a final unterminated
// record, at EOF), so a field split across two TCP segments is reassembled
// before anything is yielded.
//
// A "[DONE]" sentinel data line is yielded as an ordinary Event and does not
// end parsing; callers decide what to do with it. Parsing stops at EOF or at
// the first read error, which is yielded as the iterator's error and ends
// iteration.
func Parse(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

		var cur Event
		var dataLines []string
		hasContent := false

		flush := func() (Event, bool) {
			if !hasContent {
				return Event{}, false
			}
			cur.Data = strings.Join(dataLines, "\n")
			ev := cur
			cur = Event{}
			dataLines = nil
			hasContent = false
			return ev, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if ev, ok := flush(); ok {
					if !yield(ev, nil) {
						return
					}
				}
			case strings.HasPrefix(line, ":"):
				// comment line, ignored
			case strings.HasPrefix(line, "event:"):
				cur.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				hasContent = true
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
				hasContent = true
			case strings.HasPrefix(line, "id:"):
				cur.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
				hasContent = true
			case strings.HasPrefix(line, "retry:"):
				// retry hints are not surfaced to converters
			default:
				// unrecognized field line, ignore per spec tolerance
			}
		}

		if err := scanner.Err(); err != nil {
			yield(Event{}, err)
			return
		}

		// final record with no trailing blank line
		if ev, ok := flush(); ok {
			yield(ev, nil)
		}
	}
}
