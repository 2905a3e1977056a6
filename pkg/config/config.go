// Package config loads runtime settings. Precedence: built-in defaults,
// then the YAML config file, then environment variables.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram adapter credentials.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" env:"POCKETPAW_TELEGRAM_ENABLED"`
	Token   string `yaml:"token" env:"POCKETPAW_TELEGRAM_TOKEN"`
}

// DiscordConfig holds Discord adapter credentials.
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled" env:"POCKETPAW_DISCORD_ENABLED"`
	Token   string `yaml:"token" env:"POCKETPAW_DISCORD_TOKEN"`
}

// SlackConfig holds Slack adapter credentials (socket mode).
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled" env:"POCKETPAW_SLACK_ENABLED"`
	BotToken string `yaml:"bot_token" env:"POCKETPAW_SLACK_BOT_TOKEN"`
	AppToken string `yaml:"app_token" env:"POCKETPAW_SLACK_APP_TOKEN"`
}

// WebSocketConfig holds the WebSocket adapter's listen address.
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled" env:"POCKETPAW_WEBSOCKET_ENABLED"`
	Host    string `yaml:"host" env:"POCKETPAW_WEBSOCKET_HOST"`
	Port    int    `yaml:"port" env:"POCKETPAW_WEBSOCKET_PORT"`
}

// CLIConfig enables the interactive terminal adapter.
type CLIConfig struct {
	Enabled bool `yaml:"enabled" env:"POCKETPAW_CLI_ENABLED"`
}

// CronJobConfig is one proactive trigger: when the cron expression is due,
// the message is published as synthetic inbound input.
type CronJobConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Message  string `yaml:"message"`
	Channel  string `yaml:"channel"`
	ChatID   string `yaml:"chat_id"`
}

// Settings is the complete runtime configuration.
type Settings struct {
	AgentBackend    string `yaml:"agent_backend" env:"POCKETPAW_AGENT_BACKEND"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `yaml:"anthropic_model" env:"POCKETPAW_ANTHROPIC_MODEL"`
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIModel     string `yaml:"openai_model" env:"POCKETPAW_OPENAI_MODEL"`
	SystemPrompt    string `yaml:"system_prompt" env:"POCKETPAW_SYSTEM_PROMPT"`

	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions" env:"POCKETPAW_MAX_CONCURRENT_SESSIONS"`
	DatabasePath          string `yaml:"database_path" env:"POCKETPAW_DATABASE_PATH"`
	LogLevel              string `yaml:"log_level" env:"POCKETPAW_LOG_LEVEL"`

	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	CLI       CLIConfig       `yaml:"cli"`

	CronJobs []CronJobConfig `yaml:"cron_jobs"`
}

// Default returns the built-in defaults.
func Default() *Settings {
	return &Settings{
		AgentBackend:          "claude",
		AnthropicModel:        "claude-sonnet-4-5",
		OpenAIModel:           "gpt-4o",
		MaxConcurrentSessions: 5,
		DatabasePath:          "pocketpaw.db",
		LogLevel:              "info",
		WebSocket: WebSocketConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		CLI: CLIConfig{Enabled: true},
	}
}

// Load builds Settings from defaults, the optional YAML file at path, and
// environment overrides, in that order.
func Load(path string) (*Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(settings); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return settings, nil
}
