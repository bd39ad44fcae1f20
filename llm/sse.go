package llm

import (
	"bufio"
	"io"
	"strings"
)

// doneSentinel is the literal data payload that terminates a stream.
const doneSentinel = "[DONE]"

// SSEEvent is a single Server-Sent Event parsed from a byte stream.
type SSEEvent struct {
	// Type is the value of the "event:" field, or the empty string when
	// the frame did not specify one.
	Type string

	// Data is the payload assembled from one or more "data:" lines.
	// Multiple data lines are joined with newlines per the SSE spec.
	Data string
}

// SSEScanner incrementally parses Server-Sent Events from an io.Reader.
// It never assumes a frame boundary aligns with a read boundary: bytes
// are buffered internally and frames are cut on blank lines regardless
// of how the underlying reads are chunked.
//
// The literal "data: [DONE]" frame is recognized as the stream
// terminator: the scanner stops immediately, discarding any buffered
// partial state, and Err reports no error.
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	err     error
	done    bool
}

// NewSSEScanner creates a scanner reading SSE frames from r.
func NewSSEScanner(r io.Reader) *SSEScanner {
	return &SSEScanner{
		reader: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next advances to the next frame. Returns false at end of stream
// (EOF or the [DONE] sentinel) or on a read error; call Err afterwards
// to distinguish the two.
func (s *SSEScanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	s.current = SSEEvent{}

	var dataLines []string
	var eventType string
	hasData := false

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				// A partial final frame with accumulated data is still
				// emitted; the next call returns false.
				if hasData {
					s.current = SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
					s.done = true
					return true
				}
				s.done = true
				return false
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line closes the frame.
		if line == "" {
			if hasData {
				s.current = SSEEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}
				return true
			}
			eventType = ""
			continue
		}

		// Comment lines start with ":".
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field = line
			value = ""
		} else {
			// Per spec: strip exactly one leading space from the value.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			if value == doneSentinel {
				s.done = true
				return false
			}
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		default:
			// "id", "retry", and unknown fields are ignored per spec.
		}
	}
}

// Event returns the most recently parsed frame. Only valid after Next
// returns true.
func (s *SSEScanner) Event() SSEEvent {
	return s.current
}

// Err returns the first read error encountered, or nil when the stream
// ended cleanly (EOF or [DONE]).
func (s *SSEScanner) Err() error {
	return s.err
}
