package agents

import (
	"context"
	"sync"

	"github.com/pocketpaw/pocketpaw/pkg/bus"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// HistoryStore persists conversation turns so sessions survive restarts.
// Both methods tolerate concurrent use.
type HistoryStore interface {
	History(sessionKey string, limit int) ([]HistoryMessage, error)
	AppendTurn(sessionKey, role, content string) error
}

// historyLimit caps how many prior turns are replayed per request.
const historyLimit = 20

// sessionQueue holds one conversation's pending messages in arrival order.
// At most one drainer goroutine is active per queue.
type sessionQueue struct {
	pending []bus.InboundMessage
	active  bool
}

// Loop is the pump between the message bus and the agent router. It
// consumes inbound messages in FIFO order and streams each response back
// out. Messages sharing a session key are processed serially in arrival
// order; distinct sessions run in parallel up to maxConcurrent.
type Loop struct {
	bus          *bus.MessageBus
	router       *Router
	systemPrompt string
	history      HistoryStore

	sessionMu sync.Mutex
	sessions  map[string]*sessionQueue
	slots     chan struct{}

	wg sync.WaitGroup
}

// NewLoop creates a loop. maxConcurrent caps cross-session parallelism;
// values below one are treated as one.
func NewLoop(b *bus.MessageBus, router *Router, systemPrompt string, maxConcurrent int) *Loop {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Loop{
		bus:          b,
		router:       router,
		systemPrompt: systemPrompt,
		sessions:     make(map[string]*sessionQueue),
		slots:        make(chan struct{}, maxConcurrent),
	}
}

// SetHistory attaches a conversation store. Without one, each request is a
// single-turn exchange. Must be called before Run.
func (l *Loop) SetHistory(store HistoryStore) { l.history = store }

// Run consumes inbound messages until ctx is cancelled, then waits for
// in-flight responses to drain.
func (l *Loop) Run(ctx context.Context) {
	logger.InfoC("loop", "Agent loop started")
	for {
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}
		l.enqueue(ctx, msg)
	}
	l.wg.Wait()
	logger.InfoC("loop", "Agent loop stopped")
}

// enqueue appends a message to its session's queue, still on the consuming
// goroutine, so same-session order is fixed here and cannot be reshuffled
// by goroutine scheduling. A lock shared by racing worker goroutines would
// not give that guarantee: mutex acquisition order is unspecified.
func (l *Loop) enqueue(ctx context.Context, msg bus.InboundMessage) {
	key := msg.SessionKey()

	l.sessionMu.Lock()
	q, ok := l.sessions[key]
	if !ok {
		q = &sessionQueue{}
		l.sessions[key] = q
	}
	q.pending = append(q.pending, msg)
	startDrainer := !q.active
	q.active = true
	l.sessionMu.Unlock()

	if startDrainer {
		l.wg.Add(1)
		go l.drainSession(ctx, q)
	}
}

// drainSession processes one session's queue front to back. Each message
// takes a global slot, capping cross-session parallelism.
func (l *Loop) drainSession(ctx context.Context, q *sessionQueue) {
	defer l.wg.Done()
	for {
		l.sessionMu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			l.sessionMu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		l.sessionMu.Unlock()

		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			l.sessionMu.Lock()
			q.pending = nil
			q.active = false
			l.sessionMu.Unlock()
			return
		}
		l.processMessage(ctx, msg)
		<-l.slots
	}
}

// processMessage runs one inbound message through the router and publishes
// the resulting stream. The session drainer guarantees only one call per
// session at a time, so history stays coherent.
func (l *Loop) processMessage(ctx context.Context, msg bus.InboundMessage) {
	logger.DebugCF("loop", "Processing message", map[string]interface{}{
		"channel": string(msg.Channel),
		"chat_id": msg.ChatID,
	})

	sessionKey := msg.SessionKey()
	var history []HistoryMessage
	if l.history != nil {
		var err error
		history, err = l.history.History(sessionKey, historyLimit)
		if err != nil {
			logger.WarnCF("loop", "History load failed", map[string]interface{}{
				"session": sessionKey,
				"error":   err.Error(),
			})
		}
	}

	events := l.router.Run(ctx, RunRequest{
		Message:      msg.Content,
		SystemPrompt: l.systemPrompt,
		History:      history,
		SessionKey:   sessionKey,
	})

	var reply string
	var failed bool
	for event := range events {
		switch event.Type {
		case EventMessage:
			reply += event.Content
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel:  msg.Channel,
				ChatID:   msg.ChatID,
				Content:  event.Content,
				Metadata: map[string]string{"type": "message"},
			})

		case EventError:
			failed = true
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel:  msg.Channel,
				ChatID:   msg.ChatID,
				Content:  "Error: " + event.Content,
				Metadata: map[string]string{"type": "error"},
			})

		case EventDone:
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel:     msg.Channel,
				ChatID:      msg.ChatID,
				IsStreamEnd: true,
			})

		case EventThinking, EventThinkingDone, EventToolUse, EventToolResult, EventTokenUsage:
			l.bus.PublishSystem(bus.SystemEvent{
				Type:   "agent." + string(event.Type),
				Source: "loop",
				Data: map[string]string{
					"content": event.Content,
					"chat_id": msg.ChatID,
				},
			})
		}
	}

	if l.history != nil {
		l.appendTurn(sessionKey, "user", msg.Content)
		if reply != "" {
			l.appendTurn(sessionKey, "assistant", reply)
		}
	}

	l.reportTaskOutcome(msg, failed)
}

// reportTaskOutcome closes the scheduler's dispatch loop: when the drained
// message was a dispatched deep work task, its completion is published as a
// system event for the scheduler to pick up. A failed run leaves the task
// pending.
func (l *Loop) reportTaskOutcome(msg bus.InboundMessage, failed bool) {
	if msg.Metadata["type"] != "deepwork_task" {
		return
	}
	taskID := msg.Metadata["task_id"]
	if taskID == "" {
		return
	}
	if failed {
		logger.WarnCF("loop", "Task run failed, task stays pending", map[string]interface{}{
			"task_id": taskID,
		})
		return
	}
	l.bus.PublishSystem(bus.SystemEvent{
		Type:   "deepwork.task_completed",
		Source: "loop",
		Data:   map[string]string{"task_id": taskID},
	})
}

func (l *Loop) appendTurn(sessionKey, role, content string) {
	if err := l.history.AppendTurn(sessionKey, role, content); err != nil {
		logger.WarnCF("loop", "History append failed", map[string]interface{}{
			"session": sessionKey,
			"error":   err.Error(),
		})
	}
}

