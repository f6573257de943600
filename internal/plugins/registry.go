package plugins

import (
	"sync"

	"github.com/corehost/platform/internal/logger"
)

// globalRegistry collects every built-in plugin's factory at process
// startup via init(), the teacher's auto-registration pattern
// (registry.go) kept intact: a plugin package calls Register from its
// own init(), so the host's import list is the only place a built-in
// plugin needs to be named.
var globalRegistry = &FactoryRegistry{factories: make(map[string]Factory)}

// FactoryRegistry is a thread-safe name -> Factory map.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Register adds a built-in plugin factory under pluginID. A second
// registration of the same id overwrites the first and logs a warning,
// matching the teacher's hot-reload-friendly overwrite behavior.
func Register(pluginID string, factory Factory) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if _, exists := globalRegistry.factories[pluginID]; exists {
		logger.Root().Warn().Str("plugin", pluginID).Msg("plugin already registered, overwriting")
	}
	globalRegistry.factories[pluginID] = factory
}

// GlobalRegistry returns the process-wide built-in plugin registry.
func GlobalRegistry() *FactoryRegistry { return globalRegistry }

// All returns a copy of every registered factory, keyed by plugin id.
func (r *FactoryRegistry) All() map[string]Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Factory, len(r.factories))
	for id, f := range r.factories {
		out[id] = f
	}
	return out
}

// Get returns one factory by plugin id.
func (r *FactoryRegistry) Get(pluginID string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[pluginID]
	return f, ok
}
