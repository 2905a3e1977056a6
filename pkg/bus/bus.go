// Package bus implements the message bus at the center of the runtime.
// Channel adapters publish inbound messages into a FIFO queue consumed by
// the agent loop; outbound messages fan out to named per-channel
// subscribers. The bus is the only mediator between transports and agents.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// subscription is a named tap on one channel's outbound stream. Names make
// registration idempotent: subscribing the same (channel, name) pair again
// replaces the handler in place, and unsubscribing an absent name is a no-op.
type subscription struct {
	name    string
	handler OutboundHandler
}

// systemSub is the system-event counterpart of subscription.
type systemSub struct {
	name    string
	handler SystemHandler
}

// MessageBus decouples message producers from consumers.
//
// Inbound: a strict FIFO queue; PublishInbound never fails, ConsumeInbound
// blocks until a message arrives or the context is cancelled.
//
// Outbound: per-channel subscriber lists delivered in subscription order.
// The list is snapshotted before each delivery pass, so handlers may
// subscribe or unsubscribe mid-delivery without affecting the pass in
// flight. A failing or panicking handler is logged and skipped; the
// remaining handlers still receive the message.
type MessageBus struct {
	mu       sync.Mutex
	queue    []InboundMessage
	wake     chan struct{}
	done     chan struct{}
	outbound map[Channel][]subscription
	system   []systemSub

	closed bool
}

// New creates an empty message bus.
func New() *MessageBus {
	return &MessageBus{
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		outbound: make(map[Channel][]subscription),
	}
}

// ---------------------------------------------------------------------------
// Inbound queue
// ---------------------------------------------------------------------------

// PublishInbound enqueues a message. It never fails and never blocks; the
// queue grows as needed and preserves publish order exactly.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// ConsumeInbound removes and returns the oldest pending message, blocking
// until one arrives. Returns false when ctx is cancelled or the bus closed.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			msg := b.queue[0]
			b.queue = b.queue[1:]
			// More pending: keep the wake signal alive for other consumers.
			if len(b.queue) > 0 {
				select {
				case b.wake <- struct{}{}:
				default:
				}
			}
			b.mu.Unlock()
			return msg, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return InboundMessage{}, false
		}

		select {
		case <-b.wake:
		case <-b.done:
			return InboundMessage{}, false
		case <-ctx.Done():
			return InboundMessage{}, false
		}
	}
}

// InboundPending returns the number of queued inbound messages.
func (b *MessageBus) InboundPending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ---------------------------------------------------------------------------
// Outbound fan-out
// ---------------------------------------------------------------------------

// SubscribeOutbound registers a named handler for one channel. Re-using a
// name on the same channel replaces the existing handler, keeping its
// position in the delivery order.
func (b *MessageBus) SubscribeOutbound(channel Channel, name string, handler OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.outbound[channel]
	for i, sub := range subs {
		if sub.name == name {
			subs[i].handler = handler
			return
		}
	}
	b.outbound[channel] = append(subs, subscription{name: name, handler: handler})
}

// UnsubscribeOutbound removes a named handler. Unsubscribing a name that is
// not registered is a no-op.
func (b *MessageBus) UnsubscribeOutbound(channel Channel, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.outbound[channel]
	for i, sub := range subs {
		if sub.name == name {
			b.outbound[channel] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of handlers registered for a channel.
func (b *MessageBus) SubscriberCount(channel Channel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outbound[channel])
}

// PublishOutbound delivers a message to every handler subscribed to its
// channel, in subscription order.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := snapshot(b.outbound[msg.Channel])
	b.mu.Unlock()

	for _, sub := range subs {
		deliver(sub, msg)
	}
}

// BroadcastOutbound delivers a message to the subscribers of every channel
// except those listed in exclude. Channels are visited in sorted order for
// determinism; no ordering is guaranteed across channels otherwise.
func (b *MessageBus) BroadcastOutbound(msg OutboundMessage, exclude ...Channel) {
	skip := make(map[Channel]bool, len(exclude))
	for _, ch := range exclude {
		skip[ch] = true
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	channels := make([]Channel, 0, len(b.outbound))
	for ch := range b.outbound {
		if !skip[ch] {
			channels = append(channels, ch)
		}
	}
	snapshots := make(map[Channel][]subscription, len(channels))
	for _, ch := range channels {
		snapshots[ch] = snapshot(b.outbound[ch])
	}
	b.mu.Unlock()

	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	for _, ch := range channels {
		for _, sub := range snapshots[ch] {
			deliver(sub, msg)
		}
	}
}

// ---------------------------------------------------------------------------
// System events
// ---------------------------------------------------------------------------

// SubscribeSystem registers a named listener for system events. All
// listeners receive every event.
func (b *MessageBus) SubscribeSystem(name string, handler SystemHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.system {
		if sub.name == name {
			b.system[i].handler = handler
			return
		}
	}
	b.system = append(b.system, systemSub{name: name, handler: handler})
}

// UnsubscribeSystem removes a named system listener.
func (b *MessageBus) UnsubscribeSystem(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.system {
		if sub.name == name {
			b.system = append(b.system[:i:i], b.system[i+1:]...)
			return
		}
	}
}

// PublishSystem broadcasts a system event to all system listeners.
func (b *MessageBus) PublishSystem(event SystemEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]systemSub, len(b.system))
	copy(subs, b.system)
	b.mu.Unlock()

	for _, sub := range subs {
		deliverSystem(sub, event)
	}
}

// Close stops the bus. Pending inbound messages are discarded and blocked
// consumers are released.
func (b *MessageBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	b.mu.Unlock()

	close(b.done)
}

// ---------------------------------------------------------------------------
// Delivery helpers
// ---------------------------------------------------------------------------

func snapshot(subs []subscription) []subscription {
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

// deliver invokes one handler, isolating errors and panics so a bad
// subscriber cannot break delivery to the rest.
func deliver(sub subscription, msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Subscriber panicked during delivery", map[string]interface{}{
				"subscriber": sub.name,
				"panic":      fmt.Sprintf("%v", r),
			})
		}
	}()
	if err := sub.handler(msg); err != nil {
		logger.WarnCF("bus", "Subscriber delivery failed", map[string]interface{}{
			"subscriber": sub.name,
			"channel":    string(msg.Channel),
			"error":      err.Error(),
		})
	}
}

// deliverSystem invokes one system listener with panic isolation.
func deliverSystem(sub systemSub, event SystemEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "System listener panicked", map[string]interface{}{
				"subscriber": sub.name,
				"panic":      fmt.Sprintf("%v", r),
			})
		}
	}()
	sub.handler(event)
}
