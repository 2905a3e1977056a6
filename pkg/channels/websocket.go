package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// ---------------------------------------------------------------------------
// WebSocket adapter
// ---------------------------------------------------------------------------

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsSendBuffer     = 64
	wsSystemSubName  = "websocket"
	wsBroadcastChat  = "broadcast"
	wsMaxMessageSize = 64 * 1024
)

// wsFrame is the JSON envelope exchanged with connected clients.
type wsFrame struct {
	Type     string            `json:"type"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// wsClientFrame is what a client sends: a chat message plus an optional
// chat id to join a shared conversation, or a system_event frame carrying
// an event from an external collaborator (e.g. a task executor reporting
// completion back to the scheduler).
type wsClientFrame struct {
	Message string            `json:"message,omitempty"`
	ChatID  string            `json:"chat_id,omitempty"`
	Type    string            `json:"type,omitempty"`
	Event   string            `json:"event,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected browser/tool session.
type wsClient struct {
	chatID string
	conn   *websocket.Conn
	send   chan []byte
}

// WebSocketAdapter serves a WebSocket endpoint at /ws and bridges frames
// to and from the bus. System events are relayed to every client.
type WebSocketAdapter struct {
	*BaseAdapter
	addr       string
	listenAddr string
	server     *http.Server

	connMu  sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewWebSocketAdapter creates an adapter listening on addr (host:port).
func NewWebSocketAdapter(addr string) *WebSocketAdapter {
	a := &WebSocketAdapter{
		addr:    addr,
		clients: map[*wsClient]struct{}{},
	}
	a.BaseAdapter = NewBaseAdapter(bus.ChannelWebSocket, "websocket")
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *WebSocketAdapter) onStart(ctx context.Context) error {
	// Bind synchronously so a port conflict fails the start transaction.
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}
	a.listenAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleWS)
	a.server = &http.Server{Handler: mux}

	a.busRef().SubscribeSystem(wsSystemSubName, a.relaySystemEvent)

	go func() {
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("websocket", "Server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	logger.InfoCF("websocket", "Listening", map[string]interface{}{"addr": a.listenAddr})
	return nil
}

// Addr returns the bound listen address, useful when the adapter was
// configured with port 0.
func (a *WebSocketAdapter) Addr() string { return a.listenAddr }

func (a *WebSocketAdapter) onStop(ctx context.Context) error {
	if b := a.busRef(); b != nil {
		b.UnsubscribeSystem(wsSystemSubName)
	}
	if a.server == nil {
		return nil
	}
	a.connMu.Lock()
	for c := range a.clients {
		close(c.send)
	}
	a.clients = map[*wsClient]struct{}{}
	a.connMu.Unlock()
	return a.server.Shutdown(ctx)
}

func (a *WebSocketAdapter) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("websocket", "Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = r.RemoteAddr
	}
	client := &wsClient{chatID: chatID, conn: conn, send: make(chan []byte, wsSendBuffer)}

	a.connMu.Lock()
	a.clients[client] = struct{}{}
	a.connMu.Unlock()
	logger.InfoCF("websocket", "Client connected", map[string]interface{}{"chat_id": chatID})

	go a.writePump(client)
	a.readPump(client)
}

func (a *WebSocketAdapter) readPump(c *wsClient) {
	defer a.dropClient(c)
	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame.Type == "system_event" {
			a.ingestSystemEvent(frame)
			continue
		}
		if frame.Message == "" {
			continue
		}
		if frame.ChatID != "" {
			c.chatID = frame.ChatID
		}
		a.sendTo(c, wsFrame{Type: "stream_start"})
		a.PublishInbound(bus.InboundMessage{
			Channel:  bus.ChannelWebSocket,
			SenderID: c.chatID,
			ChatID:   c.chatID,
			Content:  frame.Message,
		})
	}
}

func (a *WebSocketAdapter) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *WebSocketAdapter) dropClient(c *wsClient) {
	a.connMu.Lock()
	if _, ok := a.clients[c]; ok {
		delete(a.clients, c)
		close(c.send)
	}
	a.connMu.Unlock()
	c.conn.Close()
	logger.InfoCF("websocket", "Client disconnected", map[string]interface{}{"chat_id": c.chatID})
}

func (a *WebSocketAdapter) sendTo(c *wsClient, frame wsFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
		logger.WarnCF("websocket", "Send buffer full, dropping frame", map[string]interface{}{"chat_id": c.chatID})
	}
}

// Send routes an outbound message to the client(s) whose chat id matches,
// or to every client for a broadcast.
func (a *WebSocketAdapter) Send(msg bus.OutboundMessage) error {
	frame := wsFrame{Type: "message", Content: msg.Content, Metadata: msg.Metadata}
	if msg.IsStreamEnd {
		frame = wsFrame{Type: "stream_end", Metadata: msg.Metadata}
	} else if msg.Metadata["type"] != "" && msg.Metadata["type"] != "message" {
		frame.Type = "notification"
	}

	a.connMu.RLock()
	defer a.connMu.RUnlock()
	for c := range a.clients {
		if msg.ChatID == wsBroadcastChat || c.chatID == msg.ChatID {
			a.sendTo(c, frame)
		}
	}
	return nil
}

// ingestSystemEvent publishes a client-supplied event onto the internal
// system bus. This is how out-of-process executors signal the scheduler,
// e.g. {"type":"system_event","event":"deepwork.task_completed",
// "data":{"task_id":"..."}}.
func (a *WebSocketAdapter) ingestSystemEvent(frame wsClientFrame) {
	if frame.Event == "" {
		return
	}
	a.mu.Lock()
	b := a.bus
	started := a.state == StateStarted
	a.mu.Unlock()
	if !started || b == nil {
		return
	}
	logger.DebugCF("websocket", "Client system event", map[string]interface{}{"event": frame.Event})
	b.PublishSystem(bus.SystemEvent{
		Type:   frame.Event,
		Source: "websocket",
		Data:   frame.Data,
	})
}

// relaySystemEvent forwards internal system events to all clients.
func (a *WebSocketAdapter) relaySystemEvent(event bus.SystemEvent) {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		raw = nil
	}
	frame := wsFrame{
		Type:    "system_event",
		Content: string(raw),
		Metadata: map[string]string{
			"event_type": event.Type,
			"source":     event.Source,
		},
	}
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	for c := range a.clients {
		a.sendTo(c, frame)
	}
}
