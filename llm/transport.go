package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DoRequest POSTs a JSON payload and returns the HTTP response. Non-2xx
// responses are drained, closed, and converted into a classified *Error;
// connection-level failures become transport errors. When streaming is
// true the Accept header requests an event stream.
//
// On success the caller owns the response body.
func DoRequest(ctx context.Context, httpClient *http.Client, endpoint string, header http.Header, payload []byte, streaming bool) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewConfigError(fmt.Sprintf("building request for %s: %v", endpoint, err))
	}

	request.Header.Set("Content-Type", "application/json")
	if streaming {
		request.Header.Set("Accept", "text/event-stream")
	}
	for key, values := range header {
		for _, value := range values {
			request.Header.Add(key, value)
		}
	}

	response, err := httpClient.Do(request)
	if err != nil {
		// Cancellation is the caller's doing, not a transport fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewTransportError("sending request", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return nil, ClassifyStatus(response.StatusCode, response.Header, readErrorMessage(response))
	}

	return response, nil
}

// readErrorMessage extracts a human-readable message from an error
// response body in the common provider format
// {"error":{"type":"...","message":"..."}}. Falls back to the raw body.
func readErrorMessage(response *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		if wireError.Error.Type != "" {
			return wireError.Error.Type + ": " + wireError.Error.Message
		}
		return wireError.Error.Message
	}
	if len(body) > 0 {
		return string(bytes.TrimSpace(body))
	}
	return http.StatusText(response.StatusCode)
}

// IdleTimeoutBody wraps a response body and closes it when no byte
// arrives within the timeout, turning a silent stalled stream into a
// transport error on the blocked Read.
type IdleTimeoutBody struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
	closed  atomic.Bool
}

// NewIdleTimeoutBody arms an idle watchdog over body. A timeout of zero
// returns the body unwrapped.
func NewIdleTimeoutBody(body io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return body
	}
	wrapped := &IdleTimeoutBody{body: body, timeout: timeout}
	wrapped.timer = time.AfterFunc(timeout, func() {
		wrapped.expired.Store(true)
		body.Close()
	})
	return wrapped
}

// Read reads from the underlying body, re-arming the watchdog on every
// read. A read failing because the watchdog fired is reported as a
// transport error.
func (b *IdleTimeoutBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil {
		if b.expired.Load() {
			return n, NewTransportError("stream idle timeout", err)
		}
		return n, err
	}
	b.timer.Reset(b.timeout)
	return n, nil
}

// Close stops the watchdog and closes the underlying body.
func (b *IdleTimeoutBody) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.timer.Stop()
	return b.body.Close()
}
