package agents

import (
	"sync"

	"github.com/pocketpaw/pocketpaw/pkg/logger"
)

// Factory constructs a backend instance. Returning an error marks the
// backend unavailable (missing credentials, absent binary, ...), which
// callers treat as an ordinary outcome, not a failure.
type Factory func() (AgentBackend, error)

// Registration pairs a backend's static descriptor with its factory.
type Registration struct {
	Info    BackendInfo
	Factory Factory
}

// Registry maps logical backend names to registrations. Entries are added
// explicitly during process initialization; there is no runtime probing.
// A secondary legacy table maps deprecated names to a current fallback,
// logging a warning on use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	legacy  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Registration),
		legacy:  make(map[string]string),
	}
}

// Register adds a backend under a logical name. Registering an existing
// name replaces the entry.
func (r *Registry) Register(name string, info BackendInfo, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Registration{Info: info, Factory: factory}
}

// RegisterLegacy maps a removed backend name to its fallback.
func (r *Registry) RegisterLegacy(name, fallback string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legacy[name] = fallback
}

// Names returns all registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Resolve maps legacy names to their current fallback, warning on use.
// Unknown names pass through unchanged.
func (r *Registry) Resolve(name string) string {
	r.mu.RLock()
	fallback, isLegacy := r.legacy[name]
	r.mu.RUnlock()

	if isLegacy {
		logger.WarnCF("registry", "Backend has been removed, falling back", map[string]interface{}{
			"backend":  name,
			"fallback": fallback,
		})
		return fallback
	}
	return name
}

// Lookup returns the registration for a backend name, resolving legacy
// names first. Absence is an ordinary result, not an error.
func (r *Registry) Lookup(name string) (Registration, bool) {
	name = r.Resolve(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// Info returns the static descriptor for a backend without constructing an
// instance. Legacy names resolve to their fallback's descriptor.
func (r *Registry) Info(name string) (BackendInfo, bool) {
	reg, ok := r.Lookup(name)
	if !ok {
		return BackendInfo{}, false
	}
	return reg.Info, true
}

// Open resolves a name and constructs the backend. Returns false when the
// name is unregistered or the factory reports the backend unavailable.
func (r *Registry) Open(name string) (AgentBackend, bool) {
	reg, ok := r.Lookup(name)
	if !ok {
		return nil, false
	}
	backend, err := reg.Factory()
	if err != nil {
		logger.DebugCF("registry", "Backend unavailable", map[string]interface{}{
			"backend": reg.Info.Name,
			"reason":  err.Error(),
		})
		return nil, false
	}
	return backend, true
}
