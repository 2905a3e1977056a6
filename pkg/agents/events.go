// Package agents defines the backend contract shared by every AI agent
// implementation, the registry that maps backend names to factories, the
// router that selects a backend, and the loop that pumps bus messages
// through it.
package agents

// EventType tags one unit of a backend's streamed response.
type EventType string

const (
	EventMessage      EventType = "message"       // text content from the agent
	EventToolUse      EventType = "tool_use"      // a tool is being invoked
	EventToolResult   EventType = "tool_result"   // tool execution result
	EventThinking     EventType = "thinking"      // extended thinking content
	EventThinkingDone EventType = "thinking_done" // thinking phase finished
	EventTokenUsage   EventType = "token_usage"   // token usage metadata
	EventError        EventType = "error"         // error description
	EventDone         EventType = "done"          // terminal, exactly once per run
)

// AgentEvent is a standardized event from any agent backend. Every Run
// stream ends with exactly one EventDone, even after an EventError.
type AgentEvent struct {
	Type     EventType         `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HistoryMessage is one prior turn handed to a backend for context.
type HistoryMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// RunRequest carries everything a backend needs for one invocation.
type RunRequest struct {
	Message      string
	SystemPrompt string
	History      []HistoryMessage
	SessionKey   string
}
