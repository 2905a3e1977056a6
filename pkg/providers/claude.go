// Package providers implements the concrete AI backends registered with
// the agent registry: Anthropic Claude and OpenAI chat completions.
package providers

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

const claudeMaxTokens = 8192

// ClaudeBackend runs conversations against the Anthropic Messages API with
// streaming enabled. Thinking deltas surface as activity events; the full
// reply is emitted as a single message event before done.
type ClaudeBackend struct {
	client anthropic.Client
	model  string

	mu      sync.Mutex
	cancels map[*context.CancelFunc]struct{}
}

// NewClaudeBackend creates a backend for the given API key and model.
func NewClaudeBackend(apiKey, model string) *ClaudeBackend {
	return &ClaudeBackend{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		cancels: make(map[*context.CancelFunc]struct{}),
	}
}

// Run executes one conversation turn. The returned channel yields events in
// order and closes after the terminal done event.
func (b *ClaudeBackend) Run(ctx context.Context, req agents.RunRequest) <-chan agents.AgentEvent {
	events := make(chan agents.AgentEvent, 16)

	runCtx, cancel := context.WithCancel(ctx)
	b.track(&cancel)

	go func() {
		defer close(events)
		defer b.untrack(&cancel)
		defer cancel()

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(b.model),
			MaxTokens: claudeMaxTokens,
			Messages:  b.buildMessages(req),
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}

		stream := b.client.Messages.NewStreaming(runCtx, params)

		var reply strings.Builder
		var thinking bool
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if thinking {
						thinking = false
						events <- agents.AgentEvent{Type: agents.EventThinkingDone}
					}
					reply.WriteString(delta.Text)
				case anthropic.ThinkingDelta:
					thinking = true
					events <- agents.AgentEvent{Type: agents.EventThinking, Content: delta.Thinking}
				}
			case anthropic.MessageDeltaEvent:
				if ev.Usage.OutputTokens > 0 {
					events <- agents.AgentEvent{
						Type: agents.EventTokenUsage,
						Metadata: map[string]string{
							"output_tokens": strconv.FormatInt(ev.Usage.OutputTokens, 10),
						},
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			logger.ErrorCF("claude", "Streaming failed", map[string]interface{}{
				"session": req.SessionKey,
				"error":   err.Error(),
			})
			events <- agents.AgentEvent{Type: agents.EventError, Content: err.Error()}
			events <- agents.AgentEvent{Type: agents.EventDone}
			return
		}

		if reply.Len() > 0 {
			events <- agents.AgentEvent{Type: agents.EventMessage, Content: reply.String()}
		}
		events <- agents.AgentEvent{Type: agents.EventDone}
	}()

	return events
}

func (b *ClaudeBackend) buildMessages(req agents.RunRequest) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, h := range req.History {
		if h.Content == "" {
			continue
		}
		if h.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(h.Content)))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(h.Content)))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Message)))
}

// Stop cancels every in-flight run. Their streams still terminate with a
// done event before closing.
func (b *ClaudeBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cancel := range b.cancels {
		(*cancel)()
	}
	return nil
}

// Status reports the backend's identity and in-flight run count.
func (b *ClaudeBackend) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"backend": "claude",
		"model":   b.model,
		"active":  len(b.cancels),
	}
}

func (b *ClaudeBackend) track(cancel *context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels[cancel] = struct{}{}
}

func (b *ClaudeBackend) untrack(cancel *context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cancels, cancel)
}

var _ agents.AgentBackend = (*ClaudeBackend)(nil)
