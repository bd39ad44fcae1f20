package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error represents a provider-neutral client error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	RetryAfter *time.Duration
	StatusCode int
	// Attempts is set when the error is surfaced after retry exhaustion.
	Attempts int
	Cause    error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeRateLimit is an HTTP 429 response. Retryable, honoring a
	// server-provided Retry-After delay when present.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer is an HTTP 5xx response. Retryable.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeTransport is a connection-level failure (reset, timeout,
	// DNS). Retryable, with no server-provided delay.
	ErrorTypeTransport ErrorType = "transport"

	// ErrorTypeInvalidRequest is a non-retryable 4xx response or invalid
	// input caught before dispatch.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeProtocol is a failure inside an otherwise-successful HTTP
	// response: an explicit failure payload, or a stream that ended
	// without a completion payload. Never retried; the server has already
	// committed to a response.
	ErrorTypeProtocol ErrorType = "protocol"

	// ErrorTypeConfig is malformed client or provider configuration.
	ErrorTypeConfig ErrorType = "config"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryableError checks whether an error should be retried.
func IsRetryableError(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}

// IsProtocolError checks whether an error came from inside a committed
// response stream.
func IsProtocolError(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrorTypeProtocol
	}
	return false
}

// ExtractRetryAfter extracts the server-provided retry delay from an
// error, or nil when none was provided.
func ExtractRetryAfter(err error) *time.Duration {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.RetryAfter
	}
	return nil
}

// NewTransportError creates a retryable connection-level error.
func NewTransportError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeTransport,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewProtocolError creates a terminal in-stream error.
func NewProtocolError(message string) *Error {
	return &Error{
		Type:    ErrorTypeProtocol,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: message,
	}
}

// ErrEmptyPrompt is returned when a prompt has no input items. Raised
// before any network call is made.
var ErrEmptyPrompt = &Error{
	Type:    ErrorTypeInvalidRequest,
	Message: "prompt input is empty",
}

// ClassifyStatus converts a non-2xx HTTP status into an Error.
// 429 and 5xx are retryable; every other 4xx is fatal. A Retry-After
// header, when parseable, is attached to rate limit errors.
func ClassifyStatus(status int, header http.Header, message string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{
			Type:       ErrorTypeRateLimit,
			Message:    message,
			Retryable:  true,
			RetryAfter: ParseRetryAfter(header.Get("Retry-After")),
			StatusCode: status,
		}
	case status >= 500 && status <= 599:
		return &Error{
			Type:       ErrorTypeServer,
			Message:    message,
			Retryable:  true,
			StatusCode: status,
		}
	default:
		return &Error{
			Type:       ErrorTypeInvalidRequest,
			Message:    message,
			StatusCode: status,
		}
	}
}

// ParseRetryAfter parses a Retry-After header value as either a second
// count or an HTTP date. Returns nil for absent or unparseable values.
func ParseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		delay := time.Duration(seconds) * time.Second
		return &delay
	}
	if at, err := time.Parse(time.RFC1123, value); err == nil {
		if delay := time.Until(at); delay > 0 {
			return &delay
		}
	}
	return nil
}
