// Package channels implements the channel-adapter lifecycle contract and
// the concrete transports (CLI, WebSocket, Telegram, Discord, Slack). An
// adapter attaches to the message bus, relays outbound messages to its
// platform, and publishes received input as inbound messages.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// State is the adapter lifecycle state. Stopped is terminal: restarting
// requires a fresh instance.
type State int

const (
	StateNotStarted State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "?"
	}
}

var (
	// ErrAlreadyStarted is returned by Start on a started adapter.
	ErrAlreadyStarted = errors.New("adapter already started")
	// ErrStopped is returned by Start on a stopped adapter.
	ErrStopped = errors.New("adapter stopped; create a fresh instance to restart")
)

// Adapter is the contract every transport implementation satisfies to
// attach to the bus.
type Adapter interface {
	Channel() bus.Channel
	Start(ctx context.Context, b *bus.MessageBus) error
	Stop(ctx context.Context) error
	Send(msg bus.OutboundMessage) error
}

// BaseAdapter carries the lifecycle state machine shared by all adapters.
// Concrete adapters embed it and Bind their send/start/stop hooks at
// construction.
//
// Start is transactional: the outbound subscription is registered before
// the startup hook runs, and rolled back if the hook fails, so a failed
// start leaves no dangling registration on the bus.
type BaseAdapter struct {
	channel bus.Channel
	name    string

	mu      sync.Mutex
	state   State
	bus     *bus.MessageBus
	send    bus.OutboundHandler
	onStart func(ctx context.Context) error
	onStop  func(ctx context.Context) error
}

// NewBaseAdapter creates the embedded lifecycle core. name keys the bus
// subscription and must be unique per adapter instance on a channel.
func NewBaseAdapter(channel bus.Channel, name string) *BaseAdapter {
	return &BaseAdapter{channel: channel, name: name}
}

// Bind wires the concrete adapter's hooks. Must be called before Start.
// onStart and onStop may be nil.
func (a *BaseAdapter) Bind(send bus.OutboundHandler, onStart, onStop func(ctx context.Context) error) {
	a.send = send
	a.onStart = onStart
	a.onStop = onStop
}

// Channel returns the transport identity this adapter serves.
func (a *BaseAdapter) Channel() bus.Channel { return a.channel }

// State returns the current lifecycle state.
func (a *BaseAdapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start binds the bus, registers the outbound subscription, then runs the
// adapter-specific startup hook. A hook failure unregisters the
// subscription and returns the error.
func (a *BaseAdapter) Start(ctx context.Context, b *bus.MessageBus) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateStarted:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	a.bus = b
	b.SubscribeOutbound(a.channel, a.name, a.send)

	if a.onStart != nil {
		if err := a.onStart(ctx); err != nil {
			b.UnsubscribeOutbound(a.channel, a.name)
			a.bus = nil
			return fmt.Errorf("start %s adapter: %w", a.channel, err)
		}
	}

	a.state = StateStarted
	logger.InfoCF("channels", "Adapter started", map[string]interface{}{"channel": string(a.channel)})
	return nil
}

// Stop marks the adapter stopped, unregisters from the bus, and runs the
// teardown hook. Safe to call even if Start never completed; repeated
// calls are no-ops.
func (a *BaseAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateStopped {
		return nil
	}
	a.state = StateStopped

	// Teardown runs first so hooks can still reach the bus (system
	// unsubscription and the like); the outbound registration goes last.
	var stopErr error
	if a.onStop != nil {
		if err := a.onStop(ctx); err != nil {
			stopErr = fmt.Errorf("stop %s adapter: %w", a.channel, err)
		}
	}
	if a.bus != nil {
		a.bus.UnsubscribeOutbound(a.channel, a.name)
		a.bus = nil
	}
	if stopErr != nil {
		return stopErr
	}
	logger.InfoCF("channels", "Adapter stopped", map[string]interface{}{"channel": string(a.channel)})
	return nil
}

// PublishInbound forwards received input to the bus, but only while the
// adapter is started. Input arriving before start or after stop is
// dropped.
func (a *BaseAdapter) PublishInbound(msg bus.InboundMessage) {
	a.mu.Lock()
	b := a.bus
	started := a.state == StateStarted
	a.mu.Unlock()

	if started && b != nil {
		b.PublishInbound(msg)
	}
}

// busRef returns the bound bus for use inside start/stop hooks, which run
// with the lifecycle lock held.
func (a *BaseAdapter) busRef() *bus.MessageBus { return a.bus }
