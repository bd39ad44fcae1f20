package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
	"github.com/opencortex/modelstream/retry"
)

const endpointPath = "/chat/completions"

// Client speaks the Chat Completions API for one provider and model.
type Client struct {
	provider   llm.ModelProviderInfo
	model      string
	httpClient *http.Client
	extra      http.Header
	logger     zerolog.Logger
}

// NewClient creates a Chat Completions client. The extra headers carry
// the caller's correlation IDs and are attached to every request.
func NewClient(provider llm.ModelProviderInfo, model string, httpClient *http.Client, extra http.Header, logger zerolog.Logger) *Client {
	return &Client{
		provider:   provider,
		model:      model,
		httpClient: httpClient,
		extra:      extra,
		logger:     logger.With().Str("component", "chatClient").Str("provider", provider.Name).Logger(),
	}
}

// openedStream is one live connection with its first frame already read.
// Peeking the first frame inside the attempt keeps pre-data stalls,
// including idle timeouts before any byte arrives, within the retry
// boundary; once data is flowing, stream failures are terminal.
type openedStream struct {
	headers http.Header
	scanner *llm.SSEScanner
	body    io.ReadCloser
	first   llm.SSEEvent
}

// Stream implements llm.Client.
func (c *Client) Stream(ctx context.Context, prompt *llm.Prompt, opts llm.TurnOptions) (llm.Stream, error) {
	payload, err := buildRequestPayload(c.provider, c.model, prompt, opts, true)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.provider.EndpointURL(endpointPath)
	if err != nil {
		return nil, err
	}
	apiKey, err := c.provider.APIKey()
	if err != nil {
		return nil, err
	}
	header := buildHeaders(apiKey, c.provider, c.extra)

	conn, err := retry.Do(ctx, c.provider.Retry, c.logger, func(ctx context.Context, attempt int) (*openedStream, error) {
		return c.open(ctx, endpoint, header, payload)
	})
	if err != nil {
		return nil, err
	}

	snapshot := llm.ParseRateLimitSnapshot(conn.headers)
	return newStream(conn.scanner, conn.body, &conn.first, snapshot, c.logger), nil
}

// open performs a single dispatch attempt: send the request, arm the
// idle watchdog, and read the first SSE frame.
func (c *Client) open(ctx context.Context, endpoint string, header http.Header, payload []byte) (*openedStream, error) {
	response, err := llm.DoRequest(ctx, c.httpClient, endpoint, header, payload, true)
	if err != nil {
		return nil, err
	}

	body := llm.NewIdleTimeoutBody(response.Body, c.provider.IdleTimeout)
	scanner := llm.NewSSEScanner(body)

	if !scanner.Next() {
		body.Close()
		if scanErr := scanner.Err(); scanErr != nil {
			return nil, scanErr
		}
		return nil, llm.NewProtocolError("stream closed before completion")
	}

	return &openedStream{
		headers: response.Header,
		scanner: scanner,
		body:    body,
		first:   scanner.Event(),
	}, nil
}

// Complete implements llm.Client: the non-streaming path over the same
// request builder.
func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts llm.TurnOptions) (*llm.Response, error) {
	payload, err := buildRequestPayload(c.provider, c.model, prompt, opts, false)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.provider.EndpointURL(endpointPath)
	if err != nil {
		return nil, err
	}
	apiKey, err := c.provider.APIKey()
	if err != nil {
		return nil, err
	}
	header := buildHeaders(apiKey, c.provider, c.extra)

	return retry.Do(ctx, c.provider.Retry, c.logger, func(ctx context.Context, attempt int) (*llm.Response, error) {
		response, err := llm.DoRequest(ctx, c.httpClient, endpoint, header, payload, false)
		if err != nil {
			return nil, err
		}
		defer response.Body.Close()

		var wire wireResponse
		if err := json.NewDecoder(response.Body).Decode(&wire); err != nil {
			return nil, llm.NewProtocolError("decoding response: " + err.Error())
		}
		if len(wire.Choices) == 0 {
			return nil, llm.NewProtocolError("response carried no choices")
		}

		return &llm.Response{
			ID:     wire.ID,
			Output: fromWireMessage(wire.Choices[0].Message),
			Usage:  wire.Usage.toTokenUsage(),
		}, nil
	})
}

var _ llm.Client = (*Client)(nil)
