package llm

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// WireShape selects the request/response schema variant used to talk to
// a provider.
type WireShape string

const (
	// WireShapeResponses is the single-shot "responses" streaming endpoint.
	WireShapeResponses WireShape = "responses"

	// WireShapeChat is the incrementally-built "chat completions" endpoint.
	WireShapeChat WireShape = "chat"
)

// Default retry and stream tuning. Applied by DefaultRetryConfig and
// provider resolution when the configuration leaves fields zero.
const (
	DefaultMaxAttempts    = 4
	DefaultBaseDelay      = 200 * time.Millisecond
	DefaultMultiplier     = 2.0
	DefaultMaxDelay       = 30 * time.Second
	DefaultJitterFraction = 0.1
	DefaultIdleTimeout    = 75 * time.Second
)

// RetryConfig tunes the attempt loop around a single request.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// Multiplier grows the delay between consecutive retries.
	Multiplier float64

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// JitterFraction is the randomized fraction added to each delay to
	// avoid synchronized retry storms, e.g. 0.1 for up to +10%.
	JitterFraction float64
}

// DefaultRetryConfig returns the standard retry tuning.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		Multiplier:     DefaultMultiplier,
		MaxDelay:       DefaultMaxDelay,
		JitterFraction: DefaultJitterFraction,
	}
}

// ModelProviderInfo is the immutable configuration for one provider:
// where to send requests, which wire shape to speak, and how to behave
// on failure. Created once per client instance and never mutated.
type ModelProviderInfo struct {
	// Name identifies the provider in configuration and logs.
	Name string

	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// EnvKey names the environment variable holding the API key.
	EnvKey string

	// WireShape selects the request/response schema variant.
	WireShape WireShape

	// Retry tunes the attempt loop.
	Retry RetryConfig

	// IdleTimeout is how long an open stream may go without a byte
	// before the attempt is treated as a transport failure.
	IdleTimeout time.Duration

	// HTTPHeaders are extra headers attached to every request.
	HTTPHeaders map[string]string

	// QueryParams are extra query parameters attached to every request.
	QueryParams map[string]string
}

// APIKey reads the provider's API key from the environment.
func (p ModelProviderInfo) APIKey() (string, error) {
	if p.EnvKey == "" {
		return "", NewConfigError(fmt.Sprintf("provider %s has no env_key configured", p.Name))
	}
	key := strings.TrimSpace(os.Getenv(p.EnvKey))
	if key == "" {
		return "", NewConfigError(fmt.Sprintf("environment variable %s is not set", p.EnvKey))
	}
	return key, nil
}

// EndpointURL joins the base URL with an API path and applies the
// provider's extra query parameters.
func (p ModelProviderInfo) EndpointURL(path string) (string, error) {
	full := strings.TrimRight(p.BaseURL, "/") + path
	if len(p.QueryParams) == 0 {
		return full, nil
	}
	parsed, err := url.Parse(full)
	if err != nil {
		return "", NewConfigError(fmt.Sprintf("provider %s has invalid base_url %q", p.Name, p.BaseURL))
	}
	query := parsed.Query()
	for key, value := range p.QueryParams {
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Built-in provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenAIChat = "openai-chat"
)

// BuiltinProviders returns the providers known without any configuration
// file. Configuration may override fields or add new providers.
func BuiltinProviders() map[string]ModelProviderInfo {
	return map[string]ModelProviderInfo{
		ProviderOpenAI: {
			Name:        ProviderOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			EnvKey:      "OPENAI_API_KEY",
			WireShape:   WireShapeResponses,
			Retry:       DefaultRetryConfig(),
			IdleTimeout: DefaultIdleTimeout,
		},
		ProviderOpenAIChat: {
			Name:        ProviderOpenAIChat,
			BaseURL:     "https://api.openai.com/v1",
			EnvKey:      "OPENAI_API_KEY",
			WireShape:   WireShapeChat,
			Retry:       DefaultRetryConfig(),
			IdleTimeout: DefaultIdleTimeout,
		},
	}
}
