package channels

import (
	"context"
	"fmt"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/config"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager owns the set of configured adapters and drives their lifecycle.
// One adapter failing to start does not stop the others.
type Manager struct {
	bus      *bus.MessageBus
	adapters []Adapter
	started  []Adapter
}

// NewManager builds adapters for every channel enabled in the settings.
func NewManager(b *bus.MessageBus, cfg *config.Settings) *Manager {
	m := &Manager{bus: b}

	if cfg.CLI.Enabled {
		m.Register(NewCLIAdapter())
	}
	if cfg.WebSocket.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.WebSocket.Host, cfg.WebSocket.Port)
		m.Register(NewWebSocketAdapter(addr))
	}
	if cfg.Telegram.Enabled {
		m.Register(NewTelegramAdapter(cfg.Telegram.Token))
	}
	if cfg.Discord.Enabled {
		m.Register(NewDiscordAdapter(cfg.Discord.Token))
	}
	if cfg.Slack.Enabled {
		m.Register(NewSlackAdapter(cfg.Slack.BotToken, cfg.Slack.AppToken))
	}
	return m
}

// Register adds an adapter to the managed set.
func (m *Manager) Register(a Adapter) {
	m.adapters = append(m.adapters, a)
}

// StartAll starts every registered adapter. Failures are logged and
// skipped; the returned error is nil as long as at least one adapter
// started (or none were registered).
func (m *Manager) StartAll(ctx context.Context) error {
	var failed int
	for _, a := range m.adapters {
		if err := a.Start(ctx, m.bus); err != nil {
			failed++
			logger.ErrorCF("channels", "Adapter failed to start", map[string]interface{}{
				"channel": string(a.Channel()),
				"error":   err.Error(),
			})
			continue
		}
		m.started = append(m.started, a)
	}
	if failed > 0 && len(m.started) == 0 && len(m.adapters) > 0 {
		return fmt.Errorf("all %d adapters failed to start", failed)
	}
	return nil
}

// StopAll stops every adapter that started, in reverse start order.
func (m *Manager) StopAll(ctx context.Context) {
	for i := len(m.started) - 1; i >= 0; i-- {
		a := m.started[i]
		if err := a.Stop(ctx); err != nil {
			logger.WarnCF("channels", "Adapter stop failed", map[string]interface{}{
				"channel": string(a.Channel()),
				"error":   err.Error(),
			})
		}
	}
	m.started = nil
}

// Started reports the channels that are currently running.
func (m *Manager) Started() []bus.Channel {
	out := make([]bus.Channel, 0, len(m.started))
	for _, a := range m.started {
		out = append(out, a.Channel())
	}
	return out
}

// Status reports the lifecycle state of every registered adapter.
func (m *Manager) Status() map[string]interface{} {
	states := map[string]interface{}{}
	for _, a := range m.adapters {
		if base, ok := a.(interface{ State() State }); ok {
			states[string(a.Channel())] = base.State().String()
		}
	}
	return map[string]interface{}{
		"registered": len(m.adapters),
		"running":    len(m.started),
		"channels":   states,
	}
}
