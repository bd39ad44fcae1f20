package responses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencortex/modelstream/llm"
)

func serverProvider(t *testing.T, baseURL string) llm.ModelProviderInfo {
	t.Setenv("MODELSTREAM_TEST_API_KEY", "sk-test")
	return llm.ModelProviderInfo{
		Name:      "test",
		BaseURL:   baseURL,
		EnvKey:    "MODELSTREAM_TEST_API_KEY",
		WireShape: llm.WireShapeResponses,
		Retry: llm.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			Multiplier:  2,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func simplePrompt() *llm.Prompt {
	return &llm.Prompt{Input: []llm.ResponseItem{llm.NewUserMessage("hi")}}
}

func writeFrames(w http.ResponseWriter, frames ...string) {
	for _, data := range frames {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
}

func TestClientStreamHappyPath(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		if r.URL.Path != "/responses" {
			t.Errorf("path = %q", r.URL.Path)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set(llm.HeaderPrimaryUsedPercent, "33.3")
		writeFrames(w,
			`{"type":"response.created","response":{"id":"resp_1"}}`,
			`{"type":"response.output_text.delta","delta":"hello"}`,
			`{"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":3,"output_tokens":1,"total_tokens":4}}}`,
		)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	stream, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var types []llm.EventType
	for stream.Next() {
		types = append(types, stream.Event().Type)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	want := []llm.EventType{
		llm.EventTypeRateLimits,
		llm.EventTypeCreated,
		llm.EventTypeOutputTextDelta,
		llm.EventTypeCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1", requests.Load())
	}
}

func TestClientStreamRetriesRateLimit(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"type":"rate_limit","message":"slow down"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrames(w,
			`{"type":"response.created","response":{"id":"resp_2"}}`,
			`{"type":"response.completed","response":{"id":"resp_2"}}`,
		)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	stream, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err != nil {
		t.Fatalf("Stream after retry: %v", err)
	}
	defer stream.Close()

	for stream.Next() {
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestClientStreamFatalStatusNoRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"invalid_api_key","message":"bad key"}}`)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	_, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err == nil {
		t.Fatal("expected error")
	}

	if requests.Load() != 1 {
		t.Errorf("requests = %d, want 1 for a fatal status", requests.Load())
	}
	if llm.IsRetryableError(err) {
		t.Error("401 must not be retryable")
	}

	var clientErr *llm.Error
	if !errors.As(err, &clientErr) {
		t.Fatalf("err = %v, want *llm.Error", err)
	}
	if clientErr.Type != llm.ErrorTypeInvalidRequest || clientErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("error = %+v, want invalid_request with 401", clientErr)
	}
}

func TestClientStreamServerErrorExhaustsRetries(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	_, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if requests.Load() != 3 {
		t.Errorf("requests = %d, want MaxAttempts", requests.Load())
	}
}

func TestClientStreamEmptyBodyIsProtocolError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		// 200 with no frames at all.
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	_, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if !llm.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, protocol failures must not retry", requests.Load())
	}
}

func TestClientStreamTruncatedAfterFirstFrameIsTerminal(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		writeFrames(w, `{"type":"response.created","response":{"id":"resp_3"}}`)
		// Connection closes without a completed payload.
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	stream, err := client.Stream(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	for stream.Next() {
	}
	if !llm.IsProtocolError(stream.Err()) {
		t.Fatalf("stream.Err() = %v, want protocol error", stream.Err())
	}
	if requests.Load() != 1 {
		t.Errorf("requests = %d, mid-stream failures must not retry", requests.Load())
	}
}

func TestClientStreamEmptyPromptNoNetwork(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	_, err := client.Stream(context.Background(), &llm.Prompt{}, llm.TurnOptions{})
	if err != llm.ErrEmptyPrompt {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}
	if requests.Load() != 0 {
		t.Errorf("requests = %d, empty prompts must fail before dispatch", requests.Load())
	}
}

func TestClientStreamCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so net/http watches the connection and cancels
		// the request context when the client disconnects.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := client.Stream(ctx, simplePrompt(), llm.TurnOptions{})
		done <- err
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
}

func TestClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "resp_9",
			"output": [
				{"type":"function_call","name":"lookup","arguments":"{}","call_id":"call_1"},
				{"type":"message","role":"assistant","content":[{"type":"output_text","text":"done"}]}
			],
			"usage": {"input_tokens":8,"output_tokens":2,"total_tokens":10}
		}`)
	}))
	defer server.Close()

	client := NewClient(serverProvider(t, server.URL), "gpt-5", server.Client(), nil, zerolog.Nop())
	response, err := client.Complete(context.Background(), simplePrompt(), llm.TurnOptions{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.ID != "resp_9" {
		t.Errorf("ID = %q", response.ID)
	}
	if len(response.Output) != 2 {
		t.Fatalf("Output = %+v", response.Output)
	}
	if response.Output[0].Type != llm.ItemTypeFunctionCall || response.Output[0].FunctionCall.Name != "lookup" {
		t.Errorf("first item = %+v", response.Output[0])
	}
	if response.Output[1].Text() != "done" {
		t.Errorf("second item text = %q", response.Output[1].Text())
	}
	if response.Usage == nil || response.Usage.TotalTokens != 10 {
		t.Errorf("Usage = %+v", response.Usage)
	}
}
