package agents

import "context"

// Capability is a fixed-width bitset of features a backend advertises.
// Compose with bitwise OR, test membership with Has. No flag is implicit.
type Capability uint32

const (
	CapStreaming Capability = 1 << iota
	CapTools
	CapMCP
	CapMultiTurn
	CapCustomSystemPrompt
)

// Has reports whether every flag in c is set.
func (caps Capability) Has(c Capability) bool { return caps&c == c }

// BackendInfo is the static, immutable descriptor for one backend type.
// It is queried from the registry without constructing the backend.
type BackendInfo struct {
	Name               string     `json:"name"`
	DisplayName        string     `json:"display_name"`
	Capabilities       Capability `json:"capabilities"`
	BuiltinTools       []string   `json:"builtin_tools,omitempty"`
	RequiredKeys       []string   `json:"required_keys,omitempty"`
	SupportedProviders []string   `json:"supported_providers,omitempty"`
}

// AgentBackend is the uniform streaming interface every agent execution
// engine implements. Run returns a channel that yields events in the exact
// order the backend produced them and is closed after the terminal
// EventDone. Cancelling ctx asks the backend to wind down; it must still
// drain the stream to a done event rather than abandon consumers.
type AgentBackend interface {
	Run(ctx context.Context, req RunRequest) <-chan AgentEvent
	Stop(ctx context.Context) error
	Status() map[string]interface{}
}
