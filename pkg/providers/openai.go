package providers

import (
	"context"
	"strconv"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// OpenAIBackend runs conversations against the chat completions API with
// streaming enabled.
type OpenAIBackend struct {
	client openai.Client
	model  string

	mu      sync.Mutex
	cancels map[*context.CancelFunc]struct{}
}

// NewOpenAIBackend creates a backend for the given API key and model.
func NewOpenAIBackend(apiKey, model string) *OpenAIBackend {
	return &OpenAIBackend{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		cancels: make(map[*context.CancelFunc]struct{}),
	}
}

// Run executes one conversation turn. The returned channel yields events in
// order and closes after the terminal done event.
func (b *OpenAIBackend) Run(ctx context.Context, req agents.RunRequest) <-chan agents.AgentEvent {
	events := make(chan agents.AgentEvent, 16)

	runCtx, cancel := context.WithCancel(ctx)
	b.track(&cancel)

	go func() {
		defer close(events)
		defer b.untrack(&cancel)
		defer cancel()

		stream := b.client.Chat.Completions.NewStreaming(runCtx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(b.model),
			Messages: b.buildMessages(req),
		})

		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			acc.AddChunk(stream.Current())
		}

		if err := stream.Err(); err != nil {
			logger.ErrorCF("openai", "Streaming failed", map[string]interface{}{
				"session": req.SessionKey,
				"error":   err.Error(),
			})
			events <- agents.AgentEvent{Type: agents.EventError, Content: err.Error()}
			events <- agents.AgentEvent{Type: agents.EventDone}
			return
		}

		if acc.Usage.TotalTokens > 0 {
			events <- agents.AgentEvent{
				Type: agents.EventTokenUsage,
				Metadata: map[string]string{
					"total_tokens": strconv.FormatInt(acc.Usage.TotalTokens, 10),
				},
			}
		}
		if len(acc.Choices) > 0 && acc.Choices[0].Message.Content != "" {
			events <- agents.AgentEvent{Type: agents.EventMessage, Content: acc.Choices[0].Message.Content}
		}
		events <- agents.AgentEvent{Type: agents.EventDone}
	}()

	return events
}

func (b *OpenAIBackend) buildMessages(req agents.RunRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	for _, h := range req.History {
		if h.Content == "" {
			continue
		}
		if h.Role == "assistant" {
			msgs = append(msgs, openai.AssistantMessage(h.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(h.Content))
		}
	}
	return append(msgs, openai.UserMessage(req.Message))
}

// Stop cancels every in-flight run.
func (b *OpenAIBackend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cancel := range b.cancels {
		(*cancel)()
	}
	return nil
}

// Status reports the backend's identity and in-flight run count.
func (b *OpenAIBackend) Status() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"backend": "openai",
		"model":   b.model,
		"active":  len(b.cancels),
	}
}

func (b *OpenAIBackend) track(cancel *context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels[cancel] = struct{}{}
}

func (b *OpenAIBackend) untrack(cancel *context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.cancels, cancel)
}

var _ agents.AgentBackend = (*OpenAIBackend)(nil)
