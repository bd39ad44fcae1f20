package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
)

type wireChunk struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []wireChunkChoice `json:"choices"`
	Usage   *wireUsage        `json:"usage"`
}

type wireChunkChoice struct {
	Index        int       `json:"index"`
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

type wireDelta struct {
	Role      string              `json:"role,omitempty"`
	Content   string              `json:"content,omitempty"`
	ToolCalls []wireToolCallDelta `json:"tool_calls,omitempty"`
}

type wireToolCallDelta struct {
	Index    int `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function *struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

// partialToolCall assembles one tool call from streaming deltas: the
// first delta carries the ID and function name, subsequent deltas
// append to the arguments string. Plain fields only: the accumulator
// slice grows on demand and copies elements when it reallocates.
type partialToolCall struct {
	id        string
	name      string
	arguments string
}

// stream translates Chat Completions chunks into response events. The
// chat protocol has no typed completion payload: deltas accumulate, a
// finish_reason marks the end of generation, and the byte stream
// terminates with a [DONE] sentinel. Finalized items queue up at
// finish_reason and the Completed event is synthesized when the byte
// stream ends, so Completed is always last.
type stream struct {
	scanner *llm.SSEScanner
	body    io.Closer
	logger  zerolog.Logger

	pendingRateLimits *llm.RateLimitSnapshot
	pendingFrame      *llm.SSEEvent

	// pending holds finalized items queued at finish_reason, emitted one
	// per Next call.
	pending []*llm.ResponseEvent

	text       strings.Builder
	toolCalls  []partialToolCall
	responseID string
	usage      *llm.TokenUsage
	started    bool
	finished   bool

	event  *llm.ResponseEvent
	err    error
	done   bool
	closed bool
}

func newStream(scanner *llm.SSEScanner, body io.Closer, firstFrame *llm.SSEEvent, snapshot *llm.RateLimitSnapshot, logger zerolog.Logger) *stream {
	return &stream{
		scanner:           scanner,
		body:              body,
		logger:            logger.With().Str("component", "chatStream").Logger(),
		pendingRateLimits: snapshot,
		pendingFrame:      firstFrame,
	}
}

// Next advances to the next response event.
func (s *stream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	if s.pendingRateLimits != nil {
		s.event = &llm.ResponseEvent{Type: llm.EventTypeRateLimits, RateLimits: s.pendingRateLimits}
		s.pendingRateLimits = nil
		return true
	}

	for {
		if len(s.pending) > 0 {
			s.event = s.pending[0]
			s.pending = s.pending[1:]
			return true
		}

		frame, ok := s.nextFrame()
		if !ok {
			return s.finish()
		}

		event, failure := s.translate(frame)
		if failure != nil {
			s.fail(failure)
			return false
		}
		if event != nil {
			s.event = event
			return true
		}
	}
}

func (s *stream) nextFrame() (llm.SSEEvent, bool) {
	if s.pendingFrame != nil {
		frame := *s.pendingFrame
		s.pendingFrame = nil
		return frame, true
	}
	if s.scanner.Next() {
		return s.scanner.Event(), true
	}
	return llm.SSEEvent{}, false
}

// finish handles the end of the byte stream: surface any read error,
// require that generation actually finished, then synthesize Completed.
func (s *stream) finish() bool {
	if err := s.scanner.Err(); err != nil {
		s.fail(err)
		return false
	}
	if !s.finished {
		s.fail(llm.NewProtocolError("stream closed before completion"))
		return false
	}

	s.event = &llm.ResponseEvent{
		Type:       llm.EventTypeCompleted,
		ResponseID: s.responseID,
		Usage:      s.usage,
	}
	s.done = true
	s.closeBody()
	return true
}

// translate feeds one chunk through the accumulator. Returns (nil, nil)
// for chunks that produce no immediate event; malformed chunks are
// logged and skipped.
func (s *stream) translate(frame llm.SSEEvent) (*llm.ResponseEvent, error) {
	var chunk wireChunk
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		s.logger.Debug().Err(err).Msg("Skipping malformed stream chunk")
		return nil, nil
	}

	// Errors arrive as regular data lines with an "error" field rather
	// than a typed SSE event. A chunk with no choices, usage, or model is
	// the sign it is not a normal completion chunk.
	if len(chunk.Choices) == 0 && chunk.Usage == nil && chunk.Model == "" {
		var errorChunk struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal([]byte(frame.Data), &errorChunk) == nil && errorChunk.Error.Message != "" {
			return nil, llm.NewProtocolError(fmt.Sprintf("response failed: %s", errorChunk.Error.Message))
		}
	}

	if chunk.ID != "" {
		s.responseID = chunk.ID
	}

	// When stream_options.include_usage is set, the final chunk after
	// finish_reason carries usage with an empty choices array.
	if chunk.Usage != nil {
		s.usage = chunk.Usage.toTokenUsage()
	}

	// A chunk can carry more than one event's worth of state (the first
	// content delta, parallel tool-call deltas, a finish_reason). The
	// first event returns immediately and the rest queue behind it.
	var first *llm.ResponseEvent
	emit := func(event *llm.ResponseEvent) {
		if first == nil {
			first = event
		} else {
			s.pending = append(s.pending, event)
		}
	}

	if !s.started {
		s.started = true
		emit(&llm.ResponseEvent{Type: llm.EventTypeCreated})
	}

	if len(chunk.Choices) == 0 {
		return first, nil
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		s.text.WriteString(choice.Delta.Content)
		emit(&llm.ResponseEvent{Type: llm.EventTypeOutputTextDelta, Delta: choice.Delta.Content})
	}

	for _, callDelta := range choice.Delta.ToolCalls {
		for len(s.toolCalls) <= callDelta.Index {
			s.toolCalls = append(s.toolCalls, partialToolCall{})
		}
		partial := &s.toolCalls[callDelta.Index]
		if callDelta.ID != "" {
			partial.id = callDelta.ID
		}
		if callDelta.Function != nil {
			if callDelta.Function.Name != "" {
				partial.name = callDelta.Function.Name
			}
			partial.arguments += callDelta.Function.Arguments
		}
	}

	if choice.FinishReason != nil {
		s.finished = true
		s.finalize()
	}

	return first, nil
}

// finalize queues the accumulated tool calls and message as item-done
// events once finish_reason arrives.
func (s *stream) finalize() {
	for _, partial := range s.toolCalls {
		item := llm.NewFunctionCall(partial.name, partial.arguments, partial.id)
		s.pending = append(s.pending, &llm.ResponseEvent{Type: llm.EventTypeOutputItemDone, Item: &item})
	}
	s.toolCalls = nil

	if s.text.Len() > 0 {
		item := llm.NewAssistantMessage(s.text.String())
		s.pending = append(s.pending, &llm.ResponseEvent{Type: llm.EventTypeOutputItemDone, Item: &item})
		s.text.Reset()
	}
}

func (s *stream) fail(err error) {
	s.err = err
	s.done = true
	s.closeBody()
}

func (s *stream) closeBody() {
	if !s.closed {
		s.closed = true
		s.body.Close()
	}
}

// Event returns the current event. Only valid after Next returns true.
func (s *stream) Event() *llm.ResponseEvent {
	return s.event
}

// Err returns the terminal stream error, if any.
func (s *stream) Err() error {
	return s.err
}

// Close releases the underlying connection.
func (s *stream) Close() error {
	s.done = true
	s.closeBody()
	return nil
}

var _ llm.Stream = (*stream)(nil)
