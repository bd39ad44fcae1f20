package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencortex/modelstream/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-5" || cfg.Provider != llm.ProviderOpenAI {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
model: gpt-4o
turn:
  reasoning_effort: high
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q", cfg.Model)
	}
	// Fields the file omits keep their defaults.
	if cfg.Provider != llm.ProviderOpenAI {
		t.Errorf("Provider = %q", cfg.Provider)
	}

	opts := cfg.TurnOptions()
	if opts.ReasoningEffort != llm.ReasoningEffortHigh {
		t.Errorf("ReasoningEffort = %q", opts.ReasoningEffort)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "model: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MODELSTREAM_MODEL", "o3")
	t.Setenv("MODELSTREAM_PROVIDER", "openai-chat")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "o3" {
		t.Errorf("Model = %q, want env override", cfg.Model)
	}
	if cfg.Provider != "openai-chat" {
		t.Errorf("Provider = %q, want env override", cfg.Provider)
	}
}

func TestResolveProviderBuiltin(t *testing.T) {
	cfg := Default()

	info, err := cfg.ResolveProvider(llm.ProviderOpenAI)
	if err != nil {
		t.Fatalf("ResolveProvider: %v", err)
	}
	if info.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q", info.BaseURL)
	}
	if info.WireShape != llm.WireShapeResponses {
		t.Errorf("WireShape = %q", info.WireShape)
	}
	if info.Retry.MaxAttempts != llm.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d", info.Retry.MaxAttempts)
	}
	if info.IdleTimeout != llm.DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v", info.IdleTimeout)
	}
}

func TestResolveProviderOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  openai:
    base_url: https://proxy.internal/v1
    idle_timeout_ms: 5000
    retry:
      max_attempts: 2
      base_delay_ms: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := cfg.ResolveProvider(llm.ProviderOpenAI)
	if err != nil {
		t.Fatalf("ResolveProvider: %v", err)
	}
	if info.BaseURL != "https://proxy.internal/v1" {
		t.Errorf("BaseURL = %q, want file override", info.BaseURL)
	}
	if info.IdleTimeout != 5*time.Second {
		t.Errorf("IdleTimeout = %v", info.IdleTimeout)
	}
	if info.Retry.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d", info.Retry.MaxAttempts)
	}
	if info.Retry.BaseDelay != 50*time.Millisecond {
		t.Errorf("BaseDelay = %v", info.Retry.BaseDelay)
	}
	// Untouched retry fields keep their defaults.
	if info.Retry.Multiplier != llm.DefaultMultiplier {
		t.Errorf("Multiplier = %v", info.Retry.Multiplier)
	}
	// The built-in env key survives a partial override.
	if info.EnvKey != "OPENAI_API_KEY" {
		t.Errorf("EnvKey = %q", info.EnvKey)
	}
}

func TestResolveProviderCustom(t *testing.T) {
	path := writeConfig(t, `
providers:
  local-vllm:
    base_url: http://localhost:8000/v1
    env_key: VLLM_API_KEY
    wire_shape: chat
    query_params:
      api-version: "2024-06-01"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := cfg.ResolveProvider("local-vllm")
	if err != nil {
		t.Fatalf("ResolveProvider: %v", err)
	}
	if info.WireShape != llm.WireShapeChat {
		t.Errorf("WireShape = %q", info.WireShape)
	}
	if info.QueryParams["api-version"] != "2024-06-01" {
		t.Errorf("QueryParams = %v", info.QueryParams)
	}

	endpoint, err := info.EndpointURL("/chat/completions")
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}
	if endpoint != "http://localhost:8000/v1/chat/completions?api-version=2024-06-01" {
		t.Errorf("endpoint = %q", endpoint)
	}
}

func TestResolveProviderUnknown(t *testing.T) {
	cfg := Default()
	if _, err := cfg.ResolveProvider("nonexistent"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{Model: "o3", Provider: "openai-chat"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Model != "o3" || loaded.Provider != "openai-chat" {
		t.Errorf("loaded = %+v", loaded)
	}
}
