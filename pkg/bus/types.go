package bus

// Channel identifies which external transport a message belongs to.
// It names transport identity, not content.
type Channel string

const (
	ChannelCLI       Channel = "cli"
	ChannelTelegram  Channel = "telegram"
	ChannelDiscord   Channel = "discord"
	ChannelSlack     Channel = "slack"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelWebSocket Channel = "websocket"
	ChannelSystem    Channel = "system"
)

// AllChannels returns every known channel tag.
func AllChannels() []Channel {
	return []Channel{
		ChannelCLI, ChannelTelegram, ChannelDiscord, ChannelSlack,
		ChannelWhatsApp, ChannelWebSocket, ChannelSystem,
	}
}

// String implements fmt.Stringer.
func (c Channel) String() string { return string(c) }

// Valid reports whether the channel tag is recognized.
func (c Channel) Valid() bool {
	for _, known := range AllChannels() {
		if c == known {
			return true
		}
	}
	return false
}

// InboundMessage is a unit of chat content entering the system via a
// channel. Created by an adapter on receipt of external input, consumed
// exactly once by the agent loop, never mutated after creation.
type InboundMessage struct {
	Channel  Channel           `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionKey identifies the conversation this message belongs to.
// Messages sharing a session key are processed serially.
func (m InboundMessage) SessionKey() string {
	return string(m.Channel) + ":" + m.ChatID
}

// OutboundMessage is a unit of chat content leaving the system. Produced by
// the agent loop or the human task router, consumed by zero or more
// subscribed adapters.
type OutboundMessage struct {
	Channel     Channel           `json:"channel"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	IsStreamEnd bool              `json:"is_stream_end,omitempty"`
}

// SystemEvent is side-channel telemetry (thinking and tool-use progress)
// broadcast independently of the outbound message path.
type SystemEvent struct {
	Type   string      `json:"type"`   // e.g. "agent.thinking", "agent.tool_use"
	Source string      `json:"source"` // e.g. "loop", "scheduler"
	Data   interface{} `json:"data,omitempty"`
}

// OutboundHandler receives outbound messages for one channel. A returned
// error is logged by the bus and never aborts delivery to other handlers.
type OutboundHandler func(OutboundMessage) error

// SystemHandler receives system events.
type SystemHandler func(SystemEvent)
