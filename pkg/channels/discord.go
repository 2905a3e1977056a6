package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
)

// ---------------------------------------------------------------------------
// Discord adapter
// ---------------------------------------------------------------------------

// DiscordAdapter bridges a Discord bot (gateway connection) to the bus.
type DiscordAdapter struct {
	*BaseAdapter
	token   string
	session *discordgo.Session
}

// NewDiscordAdapter creates an adapter for the given bot token.
func NewDiscordAdapter(token string) *DiscordAdapter {
	a := &DiscordAdapter{token: token}
	a.BaseAdapter = NewBaseAdapter(bus.ChannelDiscord, "discord")
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *DiscordAdapter) onStart(ctx context.Context) error {
	if a.token == "" {
		return errors.New("discord token not configured")
	}
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(a.onMessageCreate)
	if err := session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	a.session = session
	return nil
}

func (a *DiscordAdapter) onStop(ctx context.Context) error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Skip our own messages and other bots.
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.Content == "" {
		return
	}
	a.PublishInbound(bus.InboundMessage{
		Channel:  bus.ChannelDiscord,
		SenderID: m.Author.ID,
		ChatID:   m.ChannelID,
		Content:  m.Content,
	})
}

// Send posts assistant output to the Discord channel.
func (a *DiscordAdapter) Send(msg bus.OutboundMessage) error {
	if msg.IsStreamEnd || msg.Content == "" {
		return nil
	}
	if _, err := a.session.ChannelMessageSend(msg.ChatID, msg.Content); err != nil {
		return fmt.Errorf("send to channel %s: %w", msg.ChatID, err)
	}
	return nil
}
