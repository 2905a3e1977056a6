package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.AgentBackend != "claude" {
		t.Errorf("backend = %q, want claude", cfg.AgentBackend)
	}
	if !cfg.CLI.Enabled {
		t.Error("CLI should be enabled by default")
	}
	if cfg.WebSocket.Host != "127.0.0.1" || cfg.WebSocket.Port != 8790 {
		t.Errorf("websocket default = %s:%d", cfg.WebSocket.Host, cfg.WebSocket.Port)
	}
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("max sessions = %d, want 5", cfg.MaxConcurrentSessions)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
agent_backend: openai
log_level: debug
telegram:
  enabled: true
  token: tg-token
cron_jobs:
  - name: morning
    schedule: "0 9 * * *"
    message: plan my day
    channel: telegram
    chat_id: "42"
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentBackend != "openai" {
		t.Errorf("backend = %q, want openai", cfg.AgentBackend)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if !cfg.Telegram.Enabled || cfg.Telegram.Token != "tg-token" {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	// Untouched keys keep their defaults.
	if cfg.AnthropicModel != "claude-sonnet-4-5" {
		t.Errorf("model = %q", cfg.AnthropicModel)
	}
	if len(cfg.CronJobs) != 1 || cfg.CronJobs[0].Channel != "telegram" {
		t.Errorf("cron jobs = %+v", cfg.CronJobs)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent_backend: openai\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POCKETPAW_AGENT_BACKEND", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentBackend != "claude" {
		t.Errorf("backend = %q, env should win over file", cfg.AgentBackend)
	}
	if cfg.AnthropicAPIKey != "sk-env" {
		t.Errorf("api key = %q", cfg.AnthropicAPIKey)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AgentBackend != "claude" {
		t.Errorf("backend = %q, want default", cfg.AgentBackend)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agent_backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
