package providers

import (
	"errors"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/config"
)

// Register wires every built-in backend into the registry. Factories fail
// softly when credentials are missing, which the registry reports as the
// backend being unavailable.
func Register(registry *agents.Registry, cfg *config.Settings) {
	registry.Register("claude", agents.BackendInfo{
		Name:               "claude",
		DisplayName:        "Claude",
		Capabilities:       agents.CapStreaming | agents.CapMultiTurn | agents.CapCustomSystemPrompt,
		RequiredKeys:       []string{"ANTHROPIC_API_KEY"},
		SupportedProviders: []string{"anthropic"},
	}, func() (agents.AgentBackend, error) {
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY not set")
		}
		return NewClaudeBackend(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	})

	registry.Register("openai", agents.BackendInfo{
		Name:               "openai",
		DisplayName:        "OpenAI",
		Capabilities:       agents.CapStreaming | agents.CapMultiTurn | agents.CapCustomSystemPrompt,
		RequiredKeys:       []string{"OPENAI_API_KEY"},
		SupportedProviders: []string{"openai"},
	}, func() (agents.AgentBackend, error) {
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OPENAI_API_KEY not set")
		}
		return NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	})

	// Names from earlier releases that now route to a current backend.
	registry.RegisterLegacy("claude_code", "claude")
	registry.RegisterLegacy("chatgpt", "openai")
}
