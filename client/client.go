// Package client is the public entry point: a ModelClient bound to one
// provider and model that dispatches to the wire-shape implementation,
// attaches correlation headers, and guards the stream event ordering
// contract.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
	"github.com/opencortex/modelstream/llm/chat"
	"github.com/opencortex/modelstream/llm/responses"
)

// Correlation headers attached to every request from one client.
const (
	headerConversationID = "Conversation-Id"
	headerSessionID      = "Session-Id"
)

// ModelClient talks to one provider and model. Construction is cheap;
// all state is immutable after New, so a client is safe for concurrent
// Stream and Complete calls.
type ModelClient struct {
	provider       llm.ModelProviderInfo
	model          string
	conversationID string
	inner          llm.Client
	logger         zerolog.Logger
}

// New builds a ModelClient for the provider's wire shape. A fresh
// conversation UUID is generated here and sent on every request, so all
// attempts from one client correlate server-side.
func New(provider llm.ModelProviderInfo, model string, httpClient *http.Client, logger zerolog.Logger) (*ModelClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	conversationID := uuid.NewString()
	extra := http.Header{}
	extra.Set(headerConversationID, conversationID)
	extra.Set(headerSessionID, uuid.NewString())

	clientLogger := logger.With().
		Str("component", "modelClient").
		Str("provider", provider.Name).
		Str("model", model).
		Str("conversation_id", conversationID).
		Logger()

	var inner llm.Client
	switch provider.WireShape {
	case llm.WireShapeResponses, "":
		inner = responses.NewClient(provider, model, httpClient, extra, clientLogger)
	case llm.WireShapeChat:
		inner = chat.NewClient(provider, model, httpClient, extra, clientLogger)
	default:
		return nil, llm.NewConfigError(fmt.Sprintf("provider %s has unknown wire shape %q", provider.Name, provider.WireShape))
	}

	return &ModelClient{
		provider:       provider,
		model:          model,
		conversationID: conversationID,
		inner:          inner,
		logger:         clientLogger,
	}, nil
}

// Stream starts a model turn and returns an ordered event stream: an
// optional RateLimits event first, body events in wire order, exactly
// one Completed event last.
func (c *ModelClient) Stream(ctx context.Context, prompt *llm.Prompt, opts llm.TurnOptions) (llm.Stream, error) {
	inner, err := c.inner.Stream(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return &orderedStream{inner: inner, logger: c.logger}, nil
}

// Complete runs a non-streaming model turn.
func (c *ModelClient) Complete(ctx context.Context, prompt *llm.Prompt, opts llm.TurnOptions) (*llm.Response, error) {
	return c.inner.Complete(ctx, prompt, opts)
}

// Model returns the model this client requests.
func (c *ModelClient) Model() string {
	return c.model
}

// Provider returns the provider configuration this client was built with.
func (c *ModelClient) Provider() llm.ModelProviderInfo {
	return c.provider
}

// ConversationID returns the correlation ID sent on every request.
func (c *ModelClient) ConversationID() string {
	return c.conversationID
}

// ContextWindow returns the model's context window in tokens, or zero
// when the model is unknown.
func (c *ModelClient) ContextWindow() int64 {
	if info, ok := llm.LookupModelInfo(c.model); ok {
		return info.ContextWindow
	}
	return 0
}

// AutoCompactTokenLimit returns the token count at which conversation
// history should be compacted, or zero when the model is unknown.
func (c *ModelClient) AutoCompactTokenLimit() int64 {
	if info, ok := llm.LookupModelInfo(c.model); ok {
		return info.AutoCompactTokenLimit
	}
	return 0
}

// orderedStream enforces the event ordering contract over the wire-shape
// stream: nothing after Completed, RateLimits only as the first event.
// The wire-shape streams already behave this way; the guard drops and
// logs anything that would violate the contract rather than passing a
// malformed sequence to the consumer.
type orderedStream struct {
	inner     llm.Stream
	logger    zerolog.Logger
	started   bool
	completed bool
}

func (s *orderedStream) Next() bool {
	if s.completed {
		return false
	}
	for s.inner.Next() {
		event := s.inner.Event()
		switch event.Type {
		case llm.EventTypeRateLimits:
			if s.started {
				s.logger.Debug().Msg("Dropping rate limit event arriving after stream start")
				continue
			}
		case llm.EventTypeCompleted:
			s.completed = true
		}
		s.started = true
		return true
	}
	return false
}

func (s *orderedStream) Event() *llm.ResponseEvent {
	return s.inner.Event()
}

func (s *orderedStream) Err() error {
	return s.inner.Err()
}

func (s *orderedStream) Close() error {
	return s.inner.Close()
}

var _ llm.Stream = (*orderedStream)(nil)
