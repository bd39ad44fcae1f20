// Package config loads the modelstream YAML configuration, merges it
// over built-in defaults, and resolves provider settings into the
// immutable llm.ModelProviderInfo the clients consume.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/opencortex/modelstream/llm"
)

// RetrySettings tunes the attempt loop for one provider.
type RetrySettings struct {
	MaxAttempts    int     `yaml:"max_attempts,omitempty"`    // Total attempts, including the first
	BaseDelayMS    int64   `yaml:"base_delay_ms,omitempty"`   // Delay before the first retry
	Multiplier     float64 `yaml:"multiplier,omitempty"`      // Exponential growth factor
	MaxDelayMS     int64   `yaml:"max_delay_ms,omitempty"`    // Cap on the computed delay
	JitterFraction float64 `yaml:"jitter_fraction,omitempty"` // Randomized fraction added to each delay
}

// ProviderSettings configures one model provider.
type ProviderSettings struct {
	BaseURL       string            `yaml:"base_url,omitempty"`       // API root, e.g. https://api.openai.com/v1
	EnvKey        string            `yaml:"env_key,omitempty"`        // Environment variable holding the API key
	WireShape     string            `yaml:"wire_shape,omitempty"`     // "responses" or "chat"
	IdleTimeoutMS int64             `yaml:"idle_timeout_ms,omitempty"` // Max silence on an open stream
	HTTPHeaders   map[string]string `yaml:"http_headers,omitempty"`   // Extra headers on every request
	QueryParams   map[string]string `yaml:"query_params,omitempty"`   // Extra query parameters on every request
	Retry         *RetrySettings    `yaml:"retry,omitempty"`
}

// TurnSettings are default per-turn options applied when the caller
// leaves them empty.
type TurnSettings struct {
	ReasoningEffort  string `yaml:"reasoning_effort,omitempty"`  // minimal | low | medium | high
	ReasoningSummary string `yaml:"reasoning_summary,omitempty"` // auto | concise | detailed
	Verbosity        string `yaml:"verbosity,omitempty"`         // low | medium | high
}

// Config is the top-level configuration file.
type Config struct {
	Model     string                       `yaml:"model,omitempty"`    // Default model name
	Provider  string                       `yaml:"provider,omitempty"` // Default provider name
	Providers map[string]*ProviderSettings `yaml:"providers,omitempty"`
	Turn      TurnSettings                 `yaml:"turn,omitempty"`
}

// GetConfigPath returns the config file path. Can be overridden via
// the MODELSTREAM_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("MODELSTREAM_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.modelstream/config.yaml"
	}
	return filepath.Join(homeDir, ".modelstream", "config.yaml")
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		Model:    "gpt-5",
		Provider: llm.ProviderOpenAI,
	}
}

// Load reads the config file at path, merges it over the defaults, and
// applies environment overrides. A missing file is not an error; the
// defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		var fileConfig Config
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := mergo.Merge(cfg, fileConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	if model := os.Getenv("MODELSTREAM_MODEL"); model != "" {
		cfg.Model = model
	}
	if provider := os.Getenv("MODELSTREAM_PROVIDER"); provider != "" {
		cfg.Provider = provider
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ResolveProvider produces the immutable provider info for name: the
// built-in definition when one exists, overlaid with any file settings.
// A name with no built-in and no file entry is a config error.
func (c *Config) ResolveProvider(name string) (llm.ModelProviderInfo, error) {
	builtin, isBuiltin := llm.BuiltinProviders()[name]
	settings := c.Providers[name]

	if !isBuiltin && settings == nil {
		return llm.ModelProviderInfo{}, llm.NewConfigError(fmt.Sprintf("unknown provider %q", name))
	}

	info := builtin
	info.Name = name
	if info.Retry.MaxAttempts == 0 {
		info.Retry = llm.DefaultRetryConfig()
	}
	if info.IdleTimeout == 0 {
		info.IdleTimeout = llm.DefaultIdleTimeout
	}

	if settings == nil {
		return info, nil
	}

	if settings.BaseURL != "" {
		info.BaseURL = settings.BaseURL
	}
	if settings.EnvKey != "" {
		info.EnvKey = settings.EnvKey
	}
	if settings.WireShape != "" {
		info.WireShape = llm.WireShape(settings.WireShape)
	}
	if settings.IdleTimeoutMS > 0 {
		info.IdleTimeout = time.Duration(settings.IdleTimeoutMS) * time.Millisecond
	}
	if len(settings.HTTPHeaders) > 0 {
		info.HTTPHeaders = settings.HTTPHeaders
	}
	if len(settings.QueryParams) > 0 {
		info.QueryParams = settings.QueryParams
	}
	if settings.Retry != nil {
		if settings.Retry.MaxAttempts > 0 {
			info.Retry.MaxAttempts = settings.Retry.MaxAttempts
		}
		if settings.Retry.BaseDelayMS > 0 {
			info.Retry.BaseDelay = time.Duration(settings.Retry.BaseDelayMS) * time.Millisecond
		}
		if settings.Retry.Multiplier > 0 {
			info.Retry.Multiplier = settings.Retry.Multiplier
		}
		if settings.Retry.MaxDelayMS > 0 {
			info.Retry.MaxDelay = time.Duration(settings.Retry.MaxDelayMS) * time.Millisecond
		}
		if settings.Retry.JitterFraction > 0 {
			info.Retry.JitterFraction = settings.Retry.JitterFraction
		}
	}

	if info.BaseURL == "" {
		return llm.ModelProviderInfo{}, llm.NewConfigError(fmt.Sprintf("provider %q has no base_url", name))
	}

	return info, nil
}

// TurnOptions converts the configured turn defaults into llm options.
func (c *Config) TurnOptions() llm.TurnOptions {
	return llm.TurnOptions{
		ReasoningEffort:  llm.ReasoningEffort(c.Turn.ReasoningEffort),
		ReasoningSummary: llm.ReasoningSummary(c.Turn.ReasoningSummary),
		Verbosity:        llm.Verbosity(c.Turn.Verbosity),
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
