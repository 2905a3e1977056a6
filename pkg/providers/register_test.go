package providers

import (
	"testing"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/config"
)

// TestRegisterWiresBothBackends verifies both backends land in the registry
func TestRegisterWiresBothBackends(t *testing.T) {
	registry := agents.NewRegistry()
	Register(registry, config.Default())

	for _, name := range []string{"claude", "openai"} {
		info, ok := registry.Info(name)
		if !ok {
			t.Fatalf("backend %q not registered", name)
		}
		if !info.Capabilities.Has(agents.CapStreaming | agents.CapMultiTurn) {
			t.Errorf("backend %q missing streaming/multi-turn capabilities", name)
		}
	}
}

// TestRegisterLegacyNamesResolve verifies removed names route to a fallback
func TestRegisterLegacyNamesResolve(t *testing.T) {
	registry := agents.NewRegistry()
	Register(registry, config.Default())

	tests := []struct {
		legacy string
		want   string
	}{
		{"claude_code", "claude"},
		{"chatgpt", "openai"},
	}
	for _, tt := range tests {
		info, ok := registry.Info(tt.legacy)
		if !ok {
			t.Fatalf("legacy name %q did not resolve", tt.legacy)
		}
		if info.Name != tt.want {
			t.Errorf("legacy %q resolved to %q, want %q", tt.legacy, info.Name, tt.want)
		}
	}
}

// TestOpenWithoutCredentials verifies missing keys make a backend unavailable
func TestOpenWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.AnthropicAPIKey = ""
	cfg.OpenAIAPIKey = ""
	registry := agents.NewRegistry()
	Register(registry, cfg)

	if _, ok := registry.Open("claude"); ok {
		t.Error("claude opened without an API key")
	}
	if _, ok := registry.Open("openai"); ok {
		t.Error("openai opened without an API key")
	}
}

// TestOpenWithCredentials verifies a configured backend constructs
func TestOpenWithCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.AnthropicAPIKey = "sk-test-key-12345"
	registry := agents.NewRegistry()
	Register(registry, cfg)

	backend, ok := registry.Open("claude")
	if !ok {
		t.Fatal("expected claude to open with an API key set")
	}
	status := backend.Status()
	if status["backend"] != "claude" {
		t.Errorf("status backend = %v, want claude", status["backend"])
	}
	if status["model"] != cfg.AnthropicModel {
		t.Errorf("status model = %v, want %s", status["model"], cfg.AnthropicModel)
	}
}

// TestBackendInterfaceCompliance verifies both backends satisfy the contract
func TestBackendInterfaceCompliance(t *testing.T) {
	var _ agents.AgentBackend = (*ClaudeBackend)(nil)
	var _ agents.AgentBackend = (*OpenAIBackend)(nil)
}
