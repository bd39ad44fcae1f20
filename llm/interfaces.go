package llm

import (
	"context"
)

// Client is the provider-neutral interface implemented by each wire
// shape. Implementations handle request building, dispatch, retry, and
// stream translation internally.
type Client interface {
	// Stream sends a prompt and returns an ordered event stream. The
	// returned stream yields an optional RateLimits event first, body
	// events in wire order, and exactly one Completed event last.
	Stream(ctx context.Context, prompt *Prompt, opts TurnOptions) (Stream, error)

	// Complete sends a prompt and blocks until the full response is
	// available. For non-streaming use cases.
	Complete(ctx context.Context, prompt *Prompt, opts TurnOptions) (*Response, error)
}

// Stream is a pull-based sequence of response events, consumed by
// exactly one reader.
type Stream interface {
	// Next advances to the next event. Returns false when the stream is
	// complete or an error occurred.
	Next() bool

	// Event returns the current event. Only valid after Next returns true.
	Event() *ResponseEvent

	// Err returns the terminal error, or nil when the stream completed
	// successfully.
	Err() error

	// Close releases the underlying connection. Safe to call more than
	// once and required even when iteration ended early.
	Close() error
}
