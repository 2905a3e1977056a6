package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
)

// stubAdapter is a minimal adapter with scriptable hooks.
type stubAdapter struct {
	*BaseAdapter
	mu       sync.Mutex
	sent     []bus.OutboundMessage
	startErr error
	stops    int
}

func newStubAdapter(channel bus.Channel) *stubAdapter {
	a := &stubAdapter{}
	a.BaseAdapter = NewBaseAdapter(channel, "stub")
	a.Bind(a.Send, a.onStart, a.onStop)
	return a
}

func (a *stubAdapter) onStart(ctx context.Context) error { return a.startErr }

func (a *stubAdapter) onStop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *stubAdapter) Send(msg bus.OutboundMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	return nil
}

func (a *stubAdapter) received() []bus.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bus.OutboundMessage(nil), a.sent...)
}

func TestStartSubscribesAndReceives(t *testing.T) {
	b := bus.New()
	a := newStubAdapter(bus.ChannelCLI)

	if err := a.Start(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateStarted {
		t.Fatalf("state = %s, want started", a.State())
	}

	b.PublishOutbound(bus.OutboundMessage{Channel: bus.ChannelCLI, ChatID: "local", Content: "hello"})
	got := a.received()
	if len(got) != 1 || got[0].Content != "hello" {
		t.Errorf("received = %v", got)
	}
}

func TestFailedStartLeavesNoSubscription(t *testing.T) {
	b := bus.New()
	a := newStubAdapter(bus.ChannelCLI)
	a.startErr = errors.New("port in use")

	err := a.Start(context.Background(), b)
	if err == nil {
		t.Fatal("expected start error")
	}
	if !errors.Is(err, a.startErr) {
		t.Errorf("error = %v, want wrapped start error", err)
	}
	if a.State() != StateNotStarted {
		t.Errorf("state = %s, want not_started", a.State())
	}

	// The rolled-back subscription must not receive anything.
	if n := b.SubscriberCount(bus.ChannelCLI); n != 0 {
		t.Fatalf("residual subscriptions = %d, want 0", n)
	}
	b.PublishOutbound(bus.OutboundMessage{Channel: bus.ChannelCLI, Content: "stray"})
	if got := a.received(); len(got) != 0 {
		t.Errorf("adapter received %v after failed start", got)
	}
}

func TestDoubleStartRejected(t *testing.T) {
	b := bus.New()
	a := newStubAdapter(bus.ChannelCLI)

	if err := a.Start(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background(), b); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStopUnsubscribesAndIsTerminal(t *testing.T) {
	b := bus.New()
	a := newStubAdapter(bus.ChannelCLI)
	ctx := context.Background()

	if err := a.Start(ctx, b); err != nil {
		t.Fatal(err)
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", a.State())
	}
	if n := b.SubscriberCount(bus.ChannelCLI); n != 0 {
		t.Errorf("subscriptions after stop = %d, want 0", n)
	}

	// Stopped is terminal: restart requires a fresh instance.
	if err := a.Start(ctx, b); !errors.Is(err, ErrStopped) {
		t.Errorf("restart error = %v, want ErrStopped", err)
	}

	// Repeated stop is a no-op and must not re-run teardown.
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if a.stops != 1 {
		t.Errorf("teardown ran %d times, want 1", a.stops)
	}
}

func TestStopBeforeStartIsSafe(t *testing.T) {
	a := newStubAdapter(bus.ChannelCLI)
	if err := a.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateStopped {
		t.Errorf("state = %s, want stopped", a.State())
	}
}

func TestPublishInboundGatedOnStarted(t *testing.T) {
	b := bus.New()
	a := newStubAdapter(bus.ChannelCLI)
	ctx := context.Background()

	msg := bus.InboundMessage{Channel: bus.ChannelCLI, ChatID: "local", Content: "early"}

	// Before start: dropped.
	a.PublishInbound(msg)
	if n := b.InboundPending(); n != 0 {
		t.Errorf("pending before start = %d, want 0", n)
	}

	if err := a.Start(ctx, b); err != nil {
		t.Fatal(err)
	}
	a.PublishInbound(msg)
	if n := b.InboundPending(); n != 1 {
		t.Errorf("pending while started = %d, want 1", n)
	}

	// After stop: dropped again.
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	a.PublishInbound(msg)
	if n := b.InboundPending(); n != 1 {
		t.Errorf("pending after stop = %d, want 1", n)
	}
}
