package responses

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/opencortex/modelstream/llm"
)

// SSE payload discriminators emitted by the Responses API.
const (
	eventCreated                   = "response.created"
	eventInProgress                = "response.in_progress"
	eventOutputItemAdded           = "response.output_item.added"
	eventOutputItemDone            = "response.output_item.done"
	eventOutputTextDelta           = "response.output_text.delta"
	eventReasoningTextDelta        = "response.reasoning_text.delta"
	eventReasoningSummaryTextDelta = "response.reasoning_summary_text.delta"
	eventReasoningSummaryPartAdded = "response.reasoning_summary_part.added"
	eventCompleted                 = "response.completed"
	eventFailed                    = "response.failed"
)

// wireEvent is the envelope shared by all Responses SSE payloads; which
// fields are populated depends on the discriminator.
type wireEvent struct {
	Type     string        `json:"type"`
	Response *wireResponse `json:"response"`
	Item     *wireItem     `json:"item"`
	Delta    string        `json:"delta"`
}

// wireResponse is the response object carried by created/completed/failed
// payloads and by the non-streaming endpoint.
type wireResponse struct {
	ID     string             `json:"id"`
	Output []wireItem         `json:"output"`
	Usage  *wireUsage         `json:"usage"`
	Error  *wireResponseError `json:"error"`
}

type wireUsage struct {
	InputTokens        int64 `json:"input_tokens"`
	InputTokensDetails struct {
		CachedTokens int64 `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens        int64 `json:"output_tokens"`
	OutputTokensDetails struct {
		ReasoningTokens int64 `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int64 `json:"total_tokens"`
}

type wireResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (u *wireUsage) toTokenUsage() *llm.TokenUsage {
	if u == nil {
		return nil
	}
	return &llm.TokenUsage{
		InputTokens:           u.InputTokens,
		CachedInputTokens:     u.InputTokensDetails.CachedTokens,
		OutputTokens:          u.OutputTokens,
		ReasoningOutputTokens: u.OutputTokensDetails.ReasoningTokens,
		TotalTokens:           u.TotalTokens,
	}
}

// stream translates Responses SSE frames into response events. The
// completed payload is held back, not yielded in wire position: it is
// stored and only emitted as the final Completed event once the byte
// stream naturally ends, so Completed is always last.
type stream struct {
	scanner *llm.SSEScanner
	body    io.Closer
	logger  zerolog.Logger

	// pendingRateLimits is emitted before any body-derived event.
	pendingRateLimits *llm.RateLimitSnapshot

	// pendingFrame is the frame the dispatch path peeked while deciding
	// whether the connection was live.
	pendingFrame *llm.SSEEvent

	completed *wireResponse
	event     *llm.ResponseEvent
	err       error
	done      bool
	closed    bool
}

func newStream(scanner *llm.SSEScanner, body io.Closer, firstFrame *llm.SSEEvent, snapshot *llm.RateLimitSnapshot, logger zerolog.Logger) *stream {
	return &stream{
		scanner:           scanner,
		body:              body,
		logger:            logger.With().Str("component", "responsesStream").Logger(),
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

// nextFrame returns the peeked frame first, then reads from the scanner.
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

// finish handles natural end of the byte stream: surface any read error,
// then emit the stored completed payload, or fail when there is none.
func (s *stream) finish() bool {
	if err := s.scanner.Err(); err != nil {
		s.fail(err)
		return false
	}
	if s.completed == nil {
		s.fail(llm.NewProtocolError("stream closed before completion"))
		return false
	}

	s.event = &llm.ResponseEvent{
		Type:       llm.EventTypeCompleted,
		ResponseID: s.completed.ID,
		Usage:      s.completed.Usage.toTokenUsage(),
	}
	s.done = true
	s.closeBody()
	return true
}

// translate maps one SSE frame to a response event per the fixed payload
// table. Returns (nil, nil) for frames that produce no event: ignored
// payload types, the stored completed payload, and malformed frames,
// which are logged and skipped without aborting the stream.
func (s *stream) translate(frame llm.SSEEvent) (*llm.ResponseEvent, error) {
	payloadType := gjson.Get(frame.Data, "type").String()
	if payloadType == "" {
		s.logger.Debug().Str("data", frame.Data).Msg("Skipping SSE frame without payload type")
		return nil, nil
	}

	var payload wireEvent
	if err := json.Unmarshal([]byte(frame.Data), &payload); err != nil {
		s.logger.Debug().Err(err).Str("payload_type", payloadType).Msg("Skipping malformed SSE frame")
		return nil, nil
	}

	switch payloadType {
	case eventCreated:
		return &llm.ResponseEvent{Type: llm.EventTypeCreated}, nil

	case eventOutputItemAdded:
		if payload.Item != nil && payload.Item.Type == string(llm.ItemTypeWebSearchCall) {
			return &llm.ResponseEvent{Type: llm.EventTypeWebSearchCallBegin, CallID: payload.Item.ID}, nil
		}
		return nil, nil

	case eventOutputItemDone:
		if payload.Item == nil {
			return nil, nil
		}
		item := fromWireItem(*payload.Item)
		return &llm.ResponseEvent{Type: llm.EventTypeOutputItemDone, Item: &item}, nil

	case eventOutputTextDelta:
		return &llm.ResponseEvent{Type: llm.EventTypeOutputTextDelta, Delta: payload.Delta}, nil

	case eventReasoningTextDelta:
		return &llm.ResponseEvent{Type: llm.EventTypeReasoningContentDelta, Delta: payload.Delta}, nil

	case eventReasoningSummaryTextDelta:
		return &llm.ResponseEvent{Type: llm.EventTypeReasoningSummaryDelta, Delta: payload.Delta}, nil

	case eventReasoningSummaryPartAdded:
		return &llm.ResponseEvent{Type: llm.EventTypeReasoningSummaryPartAdded}, nil

	case eventCompleted:
		// Held back until the byte stream ends; see finish.
		s.completed = payload.Response
		return nil, nil

	case eventFailed:
		message := "response failed"
		if payload.Response != nil && payload.Response.Error != nil {
			message = fmt.Sprintf("response failed: %s", payload.Response.Error.Message)
		}
		return nil, llm.NewProtocolError(message)

	case eventInProgress:
		return nil, nil

	default:
		return nil, nil
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
