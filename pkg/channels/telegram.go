package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// ---------------------------------------------------------------------------
// Telegram adapter
// ---------------------------------------------------------------------------

// TelegramAdapter bridges a Telegram bot (long polling) to the bus.
type TelegramAdapter struct {
	*BaseAdapter
	token  string
	bot    *telego.Bot
	cancel context.CancelFunc
}

// NewTelegramAdapter creates an adapter for the given bot token.
func NewTelegramAdapter(token string) *TelegramAdapter {
	a := &TelegramAdapter{token: token}
	a.BaseAdapter = NewBaseAdapter(bus.ChannelTelegram, "telegram")
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *TelegramAdapter) onStart(ctx context.Context) error {
	if a.token == "" {
		return errors.New("telegram token not configured")
	}
	bot, err := telego.NewBot(a.token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	updates, err := bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	a.bot = bot
	a.cancel = cancel
	go a.pollLoop(updates)
	return nil
}

func (a *TelegramAdapter) onStop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *TelegramAdapter) pollLoop(updates <-chan telego.Update) {
	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Text == "" {
			continue
		}
		senderID := ""
		if msg.From != nil {
			senderID = strconv.FormatInt(msg.From.ID, 10)
		}
		a.PublishInbound(bus.InboundMessage{
			Channel:  bus.ChannelTelegram,
			SenderID: senderID,
			ChatID:   strconv.FormatInt(msg.Chat.ID, 10),
			Content:  msg.Text,
		})
	}
	logger.DebugC("telegram", "Update stream closed")
}

// Send posts assistant output to the Telegram chat. Stream-end markers
// carry no text to deliver.
func (a *TelegramAdapter) Send(msg bus.OutboundMessage) error {
	if msg.IsStreamEnd || msg.Content == "" {
		return nil
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", msg.ChatID, err)
	}
	if _, err := a.bot.SendMessage(context.Background(), tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}
