package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// ---------------------------------------------------------------------------
// Slack adapter
// ---------------------------------------------------------------------------

// SlackAdapter bridges a Slack app (socket mode) to the bus.
type SlackAdapter struct {
	*BaseAdapter
	botToken string
	appToken string
	api      *slack.Client
	client   *socketmode.Client
	cancel   context.CancelFunc
}

// NewSlackAdapter creates an adapter for the given bot and app tokens.
func NewSlackAdapter(botToken, appToken string) *SlackAdapter {
	a := &SlackAdapter{botToken: botToken, appToken: appToken}
	a.BaseAdapter = NewBaseAdapter(bus.ChannelSlack, "slack")
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *SlackAdapter) onStart(ctx context.Context) error {
	if a.botToken == "" || a.appToken == "" {
		return errors.New("slack bot_token and app_token not configured")
	}
	api := slack.New(a.botToken, slack.OptionAppLevelToken(a.appToken))

	// Verify credentials synchronously; the socket connects in the
	// background afterwards.
	if _, err := api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}

	a.api = api
	a.client = socketmode.New(api)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.eventLoop(runCtx)
	go func() {
		if err := a.client.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			logger.ErrorCF("slack", "Socket mode stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

func (a *SlackAdapter) onStop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}

func (a *SlackAdapter) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.client.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			if evt.Request != nil {
				a.client.Ack(*evt.Request)
			}
			a.handleEvent(apiEvent)
		}
	}
}

func (a *SlackAdapter) handleEvent(event slackevents.EventsAPIEvent) {
	msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Skip bot echoes and message edits.
	if msg.BotID != "" || msg.SubType != "" || msg.Text == "" {
		return
	}
	a.PublishInbound(bus.InboundMessage{
		Channel:  bus.ChannelSlack,
		SenderID: msg.User,
		ChatID:   msg.Channel,
		Content:  msg.Text,
	})
}

// Send posts assistant output to the Slack channel.
func (a *SlackAdapter) Send(msg bus.OutboundMessage) error {
	if msg.IsStreamEnd || msg.Content == "" {
		return nil
	}
	if _, _, err := a.api.PostMessage(msg.ChatID, slack.MsgOptionText(msg.Content, false)); err != nil {
		return fmt.Errorf("post to channel %s: %w", msg.ChatID, err)
	}
	return nil
}
