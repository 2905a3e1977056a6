package agents

import (
	"context"

	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// DefaultBackend is the fallback used when the configured backend cannot
// be opened.
const DefaultBackend = "claude"

// Router selects a backend at construction and relays its event stream
// unchanged. When the configured backend is unavailable it falls back to
// DefaultBackend; when that is unavailable too, the router holds no backend
// and every Run yields an error event followed by done.
type Router struct {
	registry *Registry
	backend  AgentBackend
	info     BackendInfo
}

// NewRouter resolves the configured backend name against the registry.
func NewRouter(registry *Registry, backendName string) *Router {
	r := &Router{registry: registry}

	name := backendName
	backend, ok := registry.Open(name)
	if !ok && name != DefaultBackend {
		logger.WarnCF("router", "Backend unavailable, falling back", map[string]interface{}{
			"backend":  name,
			"fallback": DefaultBackend,
		})
		name = DefaultBackend
		backend, ok = registry.Open(name)
	}
	if !ok {
		logger.ErrorC("router", "No agent backend could be loaded")
		return r
	}

	r.backend = backend
	if info, found := registry.Info(name); found {
		r.info = info
		logger.InfoCF("router", "Backend selected", map[string]interface{}{
			"backend": info.Name,
			"display": info.DisplayName,
		})
	}
	return r
}

// Run forwards the request to the active backend and returns its event
// stream as-is: no buffering, no transformation, backend ordering
// preserved. With no backend it returns a pre-terminated error stream.
func (r *Router) Run(ctx context.Context, req RunRequest) <-chan AgentEvent {
	if r.backend == nil {
		events := make(chan AgentEvent, 2)
		events <- AgentEvent{Type: EventError, Content: "no agent backend initialized"}
		events <- AgentEvent{Type: EventDone}
		close(events)
		return events
	}
	return r.backend.Run(ctx, req)
}

// Stop forwards to the active backend, if any.
func (r *Router) Stop(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	return r.backend.Stop(ctx)
}

// BackendInfo returns the active backend's descriptor; ok is false when no
// backend is loaded.
func (r *Router) BackendInfo() (BackendInfo, bool) {
	if r.backend == nil {
		return BackendInfo{}, false
	}
	return r.info, true
}
