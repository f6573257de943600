package plugins

import (
	"fmt"
	"sync"

	"github.com/corehost/platform/internal/apierr"
)

// ServiceFactory builds a per-plugin instance of a service on first
// request, and memoizes it per caller plugin (spec.md §4.3: "a factory
// may return a different instance per requesting plugin, e.g. a
// plugin-scoped logger or db handle, but the same instance every time
// that same plugin asks again").
type ServiceFactory func(callerPluginID string) interface{}

// ServiceRegistry is the dependency-injection surface every plugin's
// Init call receives through its RequestContext (spec.md §4.3):
// register(ref, impl) for process-wide singletons, registerFactory(ref,
// factory) for per-plugin-memoized services.
type ServiceRegistry struct {
	mu         sync.RWMutex
	singletons map[string]interface{}
	factories  map[string]ServiceFactory
	memoized   map[string]map[string]interface{} // ref -> callerPluginID -> instance
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		singletons: make(map[string]interface{}),
		factories:  make(map[string]ServiceFactory),
		memoized:   make(map[string]map[string]interface{}),
	}
}

// Register installs a process-wide singleton under ref, overwriting
// any existing singleton or factory registered under the same name -
// the last plugin to register during Phase 2 wins, matching how a
// later Init call would shadow an earlier service binding.
func (r *ServiceRegistry) Register(ref string, impl interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singletons[ref] = impl
	delete(r.factories, ref)
	delete(r.memoized, ref)
}

// RegisterFactory installs a per-plugin factory under ref.
func (r *ServiceRegistry) RegisterFactory(ref string, factory ServiceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ref] = factory
	delete(r.singletons, ref)
	r.memoized[ref] = make(map[string]interface{})
}

// Resolve looks up ref for callerPluginID, returning apierr.NotFound
// if nothing is registered under that name - this is treated as a
// fatal boot error upstream if the lookup happens during Init/After-
// PluginsReady (spec.md §4.5.3's dependency-ordering protects against
// it, but a plugin can still request a ref nobody ever registers).
func (r *ServiceRegistry) Resolve(ref, callerPluginID string) (interface{}, error) {
	r.mu.RLock()
	if impl, ok := r.singletons[ref]; ok {
		r.mu.RUnlock()
		return impl, nil
	}
	factory, ok := r.factories[ref]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("service %q", ref))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if instances, ok := r.memoized[ref]; ok {
		if instance, ok := instances[callerPluginID]; ok {
			return instance, nil
		}
	} else {
		r.memoized[ref] = make(map[string]interface{})
	}

	instance := factory(callerPluginID)
	r.memoized[ref][callerPluginID] = instance
	return instance, nil
}

// Has reports whether ref is registered as either a singleton or a
// factory, used by the lifecycle manager to validate a plugin's
// declared Dependencies before running its Init.
func (r *ServiceRegistry) Has(ref string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, singleton := r.singletons[ref]
	_, factory := r.factories[ref]
	return singleton || factory
}
